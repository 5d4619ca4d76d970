// Package protocol encodes and decodes the text frames exchanged on the auth and chat channels.
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/and161185/irmachat/internal/model"
)

// Action tags a server message on the auth channel.
type Action string

const (
	ActionQR     Action = "qr"
	ActionStatus Action = "status"
	ActionJWT    Action = "jwt"
	ActionError  Action = "error"
)

// VerifyFailedPayload is the only error text the auth channel ever discloses.
const VerifyFailedPayload = "Could not verify claim"

// AuthFailedPayload is the chat channel's rejection text.
const AuthFailedPayload = "Authentication error"

// Message is a server -> client frame on the auth channel.
type Message struct {
	Action  Action `json:"action"`
	Payload string `json:"payload"`
}

// QR carries the session pointer the client renders or hands to the wallet app.
func QR(payload string) Message { return Message{Action: ActionQR, Payload: payload} }

// Status forwards a backend status update.
func Status(s model.SessionStatus) Message {
	return Message{Action: ActionStatus, Payload: s.String()}
}

// JWT carries the minted chat credential.
func JWT(token string) Message { return Message{Action: ActionJWT, Payload: token} }

// Error reports a generic session failure.
func Error(text string) Message { return Message{Action: ActionError, Payload: text} }

// Encode returns the JSON text frame.
func (m Message) Encode() (string, error) { return Marshal(m) }

// Command is a client -> server control frame on the auth channel.
type Command int

const (
	CommandUnknown Command = iota
	CommandStart
	CommandStop
	// CommandClose stands for a close frame; ParseCommand never returns it.
	CommandClose
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandClose:
		return "close"
	}
	return "unknown"
}

// ParseCommand classifies a client text frame. Close frames never reach here;
// transports report them as io.EOF.
func ParseCommand(text string) Command {
	switch text {
	case "start":
		return CommandStart
	case "stop":
		return CommandStop
	}
	return CommandUnknown
}

// ChatMessage is a server -> client frame on the chat channel. Msg is nil for join notices.
type ChatMessage struct {
	User  string  `json:"user"`
	Time  int64   `json:"time"`
	ItsMe bool    `json:"its_me"`
	Msg   *string `json:"msg"`
}

// Encode returns the JSON text frame.
func (m ChatMessage) Encode() (string, error) { return Marshal(m) }

// ChatError is sent to a chat connection whose credential was rejected.
type ChatError struct {
	Error string `json:"error"`
}

// Encode returns the JSON text frame.
func (e ChatError) Encode() (string, error) { return Marshal(e) }

// Marshal encodes v as compact JSON without HTML escaping, so URLs and chat text
// reach clients byte-for-byte.
func Marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
