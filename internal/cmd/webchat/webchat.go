// Package webchat parses the conversation client's flags and composes the
// terminal UI entrypoint.
package webchat

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/webchat/internal/platform/cmd"
	"github.com/louisbranch/webchat/internal/webchat/client"
	"github.com/louisbranch/webchat/internal/webchat/tui"
)

// Config holds webchat command configuration.
type Config struct {
	StoreURL       string        `env:"WEBCHAT_STORE_URL"       envDefault:"http://localhost:8000/webchat"`
	DuplexURL      string        `env:"WEBCHAT_DUPLEX_URL"      envDefault:"ws://localhost:8000/ws/webchat/"`
	Origin         string        `env:"WEBCHAT_ORIGIN"`
	ChatID         string        `env:"WEBCHAT_CHAT_ID"`
	Title          string        `env:"WEBCHAT_TITLE"           envDefault:"webchat"`
	DisableDuplex  bool          `env:"WEBCHAT_DISABLE_DUPLEX"  envDefault:"false"`
	ConnectTimeout time.Duration `env:"WEBCHAT_CONNECT_TIMEOUT" envDefault:"10s"`
	ReconnectDelay time.Duration `env:"WEBCHAT_RECONNECT_DELAY" envDefault:"5s"`
	PollInterval   time.Duration `env:"WEBCHAT_POLL_INTERVAL"   envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.StoreURL, "store-url", cfg.StoreURL, "message store API base URL")
	fs.StringVar(&cfg.DuplexURL, "duplex-url", cfg.DuplexURL, "event feed websocket URL (empty disables duplex)")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "websocket handshake origin")
	fs.StringVar(&cfg.ChatID, "chat", cfg.ChatID, "chat id to open (empty starts a new conversation)")
	fs.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	fs.BoolVar(&cfg.DisableDuplex, "disable-duplex", cfg.DisableDuplex, "skip the duplex transport and poll only")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "duplex connect timeout")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "delay before the duplex reconnect attempt")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "polling transport fetch period")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the conversation client and starts the terminal UI.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWebchat, func(ctx context.Context) error {
		relay := &tui.Relay{}
		c := client.New(client.Config{
			StoreBaseURL:   cfg.StoreURL,
			DuplexURL:      cfg.DuplexURL,
			Origin:         cfg.Origin,
			DisableDuplex:  cfg.DisableDuplex,
			ConnectTimeout: cfg.ConnectTimeout,
			ReconnectDelay: cfg.ReconnectDelay,
			PollInterval:   cfg.PollInterval,
			OnPath:         relay.Path,
			OnChats:        relay.Chats,
			OnState:        relay.State,
		})
		c.Connect(ctx)
		defer c.Disconnect()

		if err := tui.Run(ctx, tui.Options{
			Client: c,
			Relay:  relay,
			ChatID: cfg.ChatID,
			Title:  cfg.Title,
		}); err != nil {
			return fmt.Errorf("run conversation ui: %w", err)
		}
		return nil
	})
}
