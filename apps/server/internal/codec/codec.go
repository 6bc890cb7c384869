package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Client -> server message types.
const (
	TypeJoin         = "join"
	TypeSetSessionID = "setSessionId"
	TypeReady        = "ready"
	TypeUnready      = "unready"
	TypeAddBot       = "addBot"
	TypePlayCard     = "playCard"
	TypeChooseRow    = "chooseRow"
	TypeStartGame    = "startGame"
)

// Server -> client message types.
const (
	TypeState                 = "state"
	TypeStateWithConnectionID = "stateWithConnectionId"
	TypeBotAdded              = "botAdded"
	TypeYourConnectionID      = "yourConnectionId"
	TypeError                 = "error"
)

var ErrMalformed = errors.New("malformed message")

// ClientMessage is a decoded inbound message. Only the fields of its Type
// are meaningful.
type ClientMessage struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	CardID    *int   `json:"cardId,omitempty"`
	RowIndex  *int   `json:"rowIndex,omitempty"`
}

func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg.Type = strings.TrimSpace(msg.Type)
	switch msg.Type {
	case TypeJoin, TypeReady, TypeUnready, TypeAddBot, TypeStartGame:
	case TypeSetSessionID:
		if strings.TrimSpace(msg.SessionID) == "" {
			return ClientMessage{}, fmt.Errorf("%w: setSessionId needs sessionId", ErrMalformed)
		}
	case TypePlayCard:
		if msg.CardID == nil {
			return ClientMessage{}, fmt.Errorf("%w: playCard needs cardId", ErrMalformed)
		}
	case TypeChooseRow:
		if msg.RowIndex == nil {
			return ClientMessage{}, fmt.Errorf("%w: chooseRow needs rowIndex", ErrMalformed)
		}
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
	return msg, nil
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type             string     `json:"type"`
	State            *StateView `json:"state,omitempty"`
	YourConnectionID string     `json:"yourConnectionId,omitempty"`
	ID               string     `json:"id,omitempty"`
	Message          string     `json:"message,omitempty"`
}

func encode(msg ServerMessage) []byte {
	raw, err := json.Marshal(msg)
	if err != nil {
		// Views are plain data; this only fails on programmer error.
		panic(fmt.Sprintf("codec: encode %s: %v", msg.Type, err))
	}
	return raw
}

func EncodeState(view StateView) []byte {
	return encode(ServerMessage{Type: TypeState, State: &view})
}

func EncodeStateWithConnectionID(view StateView, connID string) []byte {
	return encode(ServerMessage{Type: TypeStateWithConnectionID, State: &view, YourConnectionID: connID})
}

func EncodeBotAdded(view StateView) []byte {
	return encode(ServerMessage{Type: TypeBotAdded, State: &view})
}

func EncodeConnectionID(connID string) []byte {
	return encode(ServerMessage{Type: TypeYourConnectionID, ID: connID})
}

func EncodeError(message string) []byte {
	return encode(ServerMessage{Type: TypeError, Message: message})
}
