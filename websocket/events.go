package websocket

import (
	"encoding/json"
	"errors"
	"strings"
)

// Client -> server events.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "serverRcvsMsg"
)

// Server -> client events.
const (
	EventPreviousMessages = "previousMessages"
	EventNewMessage       = "serverSendsMsg"
	EventError            = "error"
)

// Error codes carried by EventError.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeMissingParticipant = "missing_participant"
	CodeInvalidParticipant = "invalid_participant"
	CodeRoomNotFound       = "room_not_found"
	CodeEmptyContent       = "empty_content"
	CodeNotParticipant     = "not_participant"
	CodeInvalidPayload     = "invalid_payload"
	CodeUnknownEvent       = "unknown_event"
	CodeInternal           = "internal"
)

var errMissingRoomID = errors.New("roomId is required")

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SendMessagePayload is the payload of serverRcvsMsg. UserID is optional
// and, when present, must match the authenticated user.
type SendMessagePayload struct {
	Text   string `json:"text"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
	TempID string `json:"tempId,omitempty"`
}

func (p SendMessagePayload) validate() error {
	if strings.TrimSpace(p.RoomID) == "" {
		return errMissingRoomID
	}
	return nil
}

// ErrorPayload tells the originating connection why an event failed.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
	TempID  string `json:"tempId,omitempty"`
}

// decodeRoomID accepts either a bare string or {"roomId": "..."}.
func decodeRoomID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		var obj struct {
			RoomID string `json:"roomId"`
		}
		if objErr := json.Unmarshal(raw, &obj); objErr != nil {
			return "", errMissingRoomID
		}
		id = obj.RoomID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errMissingRoomID
	}
	return id, nil
}

func encodeEvent(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(outgoing{Type: eventType, Payload: payload})
}
