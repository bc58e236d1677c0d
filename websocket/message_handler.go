package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/services"
)

// NewMessagePayload is the payload of serverSendsMsg: the stored message,
// in the same shape previousMessages and the REST history use, plus the
// sender's tempId echoed back.
type NewMessagePayload struct {
	models.Message
	TempID string `json:"tempId,omitempty"`
}

// handleFrame processes one inbound frame. Frames from a connection are
// handled in arrival order. Persistence runs on a background context so a
// message accepted before a disconnect is still stored.
func (g *Gateway) handleFrame(c *Client, frame []byte) {
	ctx := context.Background()

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		g.sendError(c, ErrorPayload{Code: CodeInvalidPayload, Message: "frame is not a valid event envelope"})
		return
	}

	switch env.Type {
	case EventJoinRoom:
		g.handleJoin(ctx, c, env.Payload)
	case EventLeaveRoom:
		g.handleLeave(c, env.Payload)
	case EventSendMessage:
		g.handleSend(ctx, c, env.Payload)
	default:
		g.sendError(c, ErrorPayload{Event: env.Type, Code: CodeUnknownEvent, Message: "unknown event type"})
	}
}

// handleJoin replays the room's history to c and subscribes it. The room
// lock keeps any concurrent send from landing between the two.
func (g *Gateway) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	roomID, err := decodeRoomID(raw)
	if err != nil {
		g.sendError(c, ErrorPayload{Event: EventJoinRoom, Code: CodeInvalidPayload, Message: err.Error()})
		return
	}

	unlock := g.hub.lockRoom(roomID)
	defer unlock()

	history, err := g.messages.GetHistoryForUser(ctx, c.UserID(), roomID, 0)
	if err != nil {
		g.failEvent(c, EventJoinRoom, roomID, "", err)
		return
	}

	if history == nil {
		history = []models.Message{}
	}
	frame, err := encodeEvent(EventPreviousMessages, history)
	if err != nil {
		g.failEvent(c, EventJoinRoom, roomID, "", err)
		return
	}
	if !g.hub.enqueue(c, frame) {
		return
	}

	var watermark uint
	if n := len(history); n > 0 {
		watermark = history[n-1].ID
	}
	g.hub.join(c, roomID, watermark)
	c.logger.Info("joined room", "room_id", roomID, "replayed", len(history))
}

func (g *Gateway) handleLeave(c *Client, raw json.RawMessage) {
	roomID, err := decodeRoomID(raw)
	if err != nil {
		g.sendError(c, ErrorPayload{Event: EventLeaveRoom, Code: CodeInvalidPayload, Message: err.Error()})
		return
	}
	g.hub.leave(c, roomID)
	c.logger.Info("left room", "room_id", roomID)
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, raw json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.sendError(c, ErrorPayload{Event: EventSendMessage, Code: CodeInvalidPayload, Message: "malformed message payload"})
		return
	}
	if err := payload.validate(); err != nil {
		g.sendError(c, ErrorPayload{Event: EventSendMessage, Code: CodeInvalidPayload, Message: err.Error(), TempID: payload.TempID})
		return
	}
	if payload.UserID != "" && payload.UserID != c.UserID() {
		g.sendError(c, ErrorPayload{
			Event:   EventSendMessage,
			Code:    CodeNotParticipant,
			Message: "userId does not match the authenticated user",
			RoomID:  payload.RoomID,
			TempID:  payload.TempID,
		})
		return
	}

	if _, err := g.SendMessage(ctx, c.UserID(), payload.RoomID, payload.Text, payload.TempID); err != nil {
		g.failEvent(c, EventSendMessage, payload.RoomID, payload.TempID, err)
	}
}

// SendMessage persists text from senderID and fans it out to the room's
// joined connections. Nothing is broadcast unless the store accepted it.
func (g *Gateway) SendMessage(ctx context.Context, senderID, roomID, text, tempID string) (*models.Message, error) {
	unlock := g.hub.lockRoom(roomID)
	defer unlock()

	message, err := g.messages.AppendMessage(ctx, senderID, roomID, text)
	if err != nil {
		return nil, err
	}

	out := NewMessagePayload{Message: *message, TempID: tempID}
	if err := g.hub.Broadcast(ctx, message.RoomID, message.ID, EventNewMessage, out); err != nil {
		g.logger.Error("broadcast failed", "room_id", message.RoomID, "message_id", message.ID, "error", err)
		return message, nil
	}
	g.logger.Debug("message sent", "room_id", message.RoomID, "message_id", message.ID, "sender_id", senderID)
	return message, nil
}

func (g *Gateway) failEvent(c *Client, event, roomID, tempID string, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		c.logger.Error("event failed", "event", event, "room_id", roomID, "error", err)
		msg = "internal error"
	} else {
		c.logger.Debug("event rejected", "event", event, "room_id", roomID, "error", err)
	}
	g.sendError(c, ErrorPayload{Event: event, Code: code, Message: msg, RoomID: roomID, TempID: tempID})
}

func (g *Gateway) sendError(c *Client, payload ErrorPayload) {
	frame, err := encodeEvent(EventError, payload)
	if err != nil {
		c.logger.Error("encode error event", "error", err)
		return
	}
	g.hub.enqueue(c, frame)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, services.ErrMissingParticipant):
		return CodeMissingParticipant
	case errors.Is(err, services.ErrInvalidParticipant):
		return CodeInvalidParticipant
	case errors.Is(err, services.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, services.ErrEmptyContent):
		return CodeEmptyContent
	case errors.Is(err, services.ErrNotParticipant):
		return CodeNotParticipant
	default:
		return CodeInternal
	}
}
