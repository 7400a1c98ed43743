package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/toy-irc-chat/internal/chat"
	"github.com/omochice/toy-irc-chat/internal/client"
	"github.com/omochice/toy-irc-chat/internal/client/tcp"
	"github.com/omochice/toy-irc-chat/internal/config"
	"github.com/omochice/toy-irc-chat/internal/logging"
	"github.com/omochice/toy-irc-chat/internal/transport/ws"
)

var (
	configPath     string
	verbose        bool
	tickInterval   time.Duration
	feedAddr       string
	reconnectDelay time.Duration
	readStdin      bool
	forceInit      bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatbot",
	Short: "Join a Twitch channel and relay its chat",
	Long: `chatbot logs into Twitch chat, joins one channel and prints every chat
message it receives.

Credentials come from the config file or the TWITCH_TOKEN, TWITCH_NICK,
TWITCH_CHANNEL and TWITCH_CLIENT_ID environment variables.

With --feed-addr the messages are also pushed to WebSocket overlays.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if feedAddr != "" {
			cfg.Feed.Enabled = true
			cfg.Feed.Address = feedAddr
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(verbose || cfg.Logging.Verbose, cfg.Logging.JSON)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "chatbot.yaml", "Path to the YAML config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().DurationVar(&tickInterval, "tick", tcp.DefaultTickInterval, "Interval between connection ticks")
	rootCmd.Flags().StringVar(&feedAddr, "feed-addr", "", "Serve the overlay feed on this address (e.g., :8080)")
	rootCmd.Flags().DurationVar(&reconnectDelay, "reconnect-delay", 0, "Reconnect after this delay when the connection drops (0 disables)")
	rootCmd.Flags().BoolVar(&readStdin, "stdin", false, "Send each line read from stdin to the channel")

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the chatbot config file",
	// The file may not exist or be complete yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `init writes the default settings to the --config path. Values from the
TWITCH_* environment variables are included, so the file is created with
owner-only permissions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd.OutOrStdout(), configPath, forceInit)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rate, err := cfg.RateLimit()
	if err != nil {
		return err
	}

	c, err := tcp.New(tcp.Options{
		Host:        cfg.Twitch.Host,
		Port:        cfg.Twitch.Port,
		TLS:         cfg.Twitch.TLS,
		Credentials: cfg.Credentials(),
		Rate:        rate,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	c.Subscribe(printer(cmd.OutOrStdout()))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Feed.Enabled {
		hub := chat.NewHub(logger.Named("feed"))
		srv := ws.New(cfg.Feed.Address, hub, logger.Named("feed"))
		c.Subscribe(hub.Relay(cfg.Twitch.Channel))

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	if readStdin {
		go sendLines(cmd.InOrStdin(), c)
	}

	g.Go(func() error {
		return drive(gctx, c)
	})

	return g.Wait()
}

// drive keeps the connection ticking and applies the reconnect policy.
func drive(ctx context.Context, c *tcp.Client) error {
	for {
		err := c.Connect(ctx)
		if err == nil {
			err = c.Run(ctx, tickInterval)
		}
		if ctx.Err() != nil {
			return nil
		}
		if reconnectDelay <= 0 || errors.Is(err, client.ErrAuthFailed) {
			return err
		}

		logger.Warn("Connection lost, reconnecting",
			zap.Duration("delay", reconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func initConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}

func printer(w io.Writer) chat.Listener {
	return func(sender, text string) error {
		_, err := fmt.Fprintf(w, "[%s]: %s\n", sender, text)
		return err
	}
}

func sendLines(r io.Reader, c *tcp.Client) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		c.Send(text)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Error reading input", zap.Error(err))
	}
}
