// Package client implements the real-time conversation client.
//
// It keeps transport selection, retry/fallback, and subscription replay
// isolated from the UI layer: callers see one facade that normalizes the
// duplex event feed and the request/response store API to the same shape.
package client
