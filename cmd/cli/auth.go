package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"

	"github.com/and161185/irmachat/internal/model"
	"github.com/and161185/irmachat/internal/protocol"
)

var errSessionEnded = errors.New("session ended without a credential")

func newAuthCmd(origin *string) *cobra.Command {
	var (
		url  string
		save bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Run an IRMA disclosure session and obtain a chat token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := runAuth(cmd.Context(), cmd.OutOrStdout(), url, *origin)
			if err != nil {
				return err
			}
			if !save {
				return nil
			}
			exp, err := tokenExpiry(tok)
			if err != nil {
				return fmt.Errorf("read token expiry: %w", err)
			}
			if err := saveToken(tok, exp); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "token saved to %s\n", tokenPath())
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/", "Auth channel WebSocket URL")
	cmd.Flags().BoolVar(&save, "save", true, "Save the token for the chat command")

	return cmd
}

// runAuth sends start, prints every server message and returns the issued
// token. Cancelling ctx sends stop and closes the connection.
func runAuth(ctx context.Context, out io.Writer, url, origin string) (string, error) {
	conn, err := dialWS(url, origin)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := websocket.Message.Send(conn, "start"); err != nil {
		return "", fmt.Errorf("send start: %w", err)
	}
	unhook := context.AfterFunc(ctx, func() {
		_ = websocket.Message.Send(conn, "stop")
		_ = conn.Close()
	})
	defer unhook()

	for {
		var text string
		if err := websocket.Message.Receive(conn, &text); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return "", errSessionEnded
			}
			return "", fmt.Errorf("receive: %w", err)
		}
		var m protocol.Message
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return "", fmt.Errorf("decode server message: %w", err)
		}

		switch m.Action {
		case protocol.ActionQR:
			fmt.Fprintf(out, "qr: %s\n", m.Payload)
		case protocol.ActionStatus:
			fmt.Fprintf(out, "status: %s\n", m.Payload)
			switch model.SessionStatus(m.Payload) {
			case model.StatusCancelled, model.StatusTimeout:
				return "", fmt.Errorf("%w: %s", errSessionEnded, strings.ToLower(m.Payload))
			}
		case protocol.ActionJWT:
			fmt.Fprintf(out, "jwt: %s\n", m.Payload)
			return m.Payload, nil
		case protocol.ActionError:
			return "", fmt.Errorf("server: %s", m.Payload)
		default:
			return "", fmt.Errorf("unknown action %q", m.Action)
		}
	}
}
