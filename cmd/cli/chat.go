package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"

	"github.com/and161185/irmachat/internal/protocol"
)

func newChatCmd(origin *string) *cobra.Command {
	var url, tok string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the chat relay; stdin lines are sent, messages are printed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tok == "" {
				saved, err := loadToken()
				if err != nil {
					return err
				}
				tok = saved
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), url, *origin, tok)
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8081/", "Chat channel WebSocket URL")
	cmd.Flags().StringVar(&tok, "token", "", "Chat token (defaults to the one saved by auth)")

	return cmd
}

// chatFrame decodes either a chat message or a rejection.
type chatFrame struct {
	protocol.ChatMessage
	Error string `json:"error"`
}

// runChat relays stdin lines to the server and prints incoming messages until
// the server closes the connection or ctx ends.
func runChat(ctx context.Context, in io.Reader, out io.Writer, url, origin, tok string) error {
	conn, err := dialWS(url, origin)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := websocket.Message.Send(conn, tok); err != nil {
		return fmt.Errorf("send token: %w", err)
	}
	unhook := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer unhook()

	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if err := websocket.Message.Send(conn, sc.Text()); err != nil {
				return
			}
		}
	}()

	for {
		var text string
		if err := websocket.Message.Receive(conn, &text); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		var f chatFrame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return fmt.Errorf("decode server message: %w", err)
		}
		if f.Error != "" {
			return fmt.Errorf("rejected: %s", f.Error)
		}
		fmt.Fprintln(out, formatChatLine(f.ChatMessage))
	}
}

func formatChatLine(m protocol.ChatMessage) string {
	ts := time.Unix(m.Time, 0).Format("15:04:05")
	who := m.User
	if m.ItsMe {
		who += " (you)"
	}
	if m.Msg == nil {
		return fmt.Sprintf("[%s] * %s joined", ts, who)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, who, *m.Msg)
}
