package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/roomrelay/internal/core"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSetUsername = "SetUsername"
	InboundTypeChat        = "Chat"
)

// ErrUnknownType is returned for envelopes whose type is not recognised.
var ErrUnknownType = errors.New("unknown message type")

// ErrEmptyUsername is returned when a SetUsername carries no usable name.
var ErrEmptyUsername = errors.New("empty username")

// SetUsernameData is the object form of SetUsername data.
// The plain string form "alice" is equivalent to {"name":"alice"}.
type SetUsernameData struct {
	Name string `json:"name"`
	Room string `json:"room,omitempty"`
}

// Decode parses one text frame into a core.Inbound.
func Decode(raw []byte) (core.Inbound, error) {
	var env Inbound
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case InboundTypeSetUsername:
		data, err := decodeSetUsername(env.Data)
		if err != nil {
			return nil, err
		}
		return core.SetUsername{Name: data.Name, Room: data.Room}, nil
	case InboundTypeChat:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return core.Chat{Text: text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeSetUsername(raw json.RawMessage) (SetUsernameData, error) {
	var data SetUsernameData

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return data, fmt.Errorf("decode username: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &data.Name); err != nil {
		return data, fmt.Errorf("decode username: %w", err)
	}

	data.Name = strings.TrimSpace(data.Name)
	data.Room = strings.TrimSpace(data.Room)
	if data.Name == "" {
		return data, ErrEmptyUsername
	}
	return data, nil
}

// EncodeSetUsername builds a SetUsername frame. An empty room uses the plain string form.
func EncodeSetUsername(name, room string) ([]byte, error) {
	var data any = name
	if room != "" {
		data = SetUsernameData{Name: name, Room: room}
	}
	return encode(InboundTypeSetUsername, data)
}

// EncodeChat builds a Chat frame.
func EncodeChat(text string) ([]byte, error) {
	return encode(InboundTypeChat, text)
}

func encode(kind string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Inbound{Type: kind, Data: payload})
}
