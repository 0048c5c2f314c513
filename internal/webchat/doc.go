// Package webchat defines the conversation wire model shared by transports.
//
// It keeps message/chat records and the typed envelope protocol isolated from
// connection lifecycle so the store client, the duplex channel, and the branch
// resolver all agree on one data shape.
package webchat
