// Command irmachat is a terminal client for the irmachat auth and chat channels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var origin string

	root := &cobra.Command{
		Use:          "irmachat",
		Short:        "Authenticate with IRMA and chat from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&origin, "origin", "http://localhost/", "Origin header sent on the WebSocket handshake")

	root.AddCommand(
		newVersionCmd(),
		newAuthCmd(&origin),
		newChatCmd(&origin),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "irmachat %s (%s)\n", version, buildDate)
			return err
		},
	}
}

func dialWS(url, origin string) (*websocket.Conn, error) {
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}
