package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/toy-irc-chat/internal/client/ws"
	"github.com/omochice/toy-irc-chat/internal/logging"
)

var (
	serverURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:          "feed-viewer",
	Short:        "Print chat events from a chatbot overlay feed",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "ws://localhost:8080/", "Overlay feed address")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(verbose, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	feed := ws.New(serverURL, logger)
	if err := feed.Connect(ctx); err != nil {
		return err
	}
	defer feed.Disconnect()

	fmt.Fprintf(cmd.ErrOrStderr(), "Connected to %s\n", serverURL)

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-feed.Events():
			if !ok {
				return feed.Err()
			}
			fmt.Fprintf(out, "%s %s [%s]: %s\n",
				event.ReceivedAt.Local().Format("15:04:05"), event.Channel, event.Sender, event.Text)
		}
	}
}
