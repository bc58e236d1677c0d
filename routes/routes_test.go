package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CUknot/nexus_chat/database"
	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/services"
	"github.com/CUknot/nexus_chat/utils"
	"github.com/CUknot/nexus_chat/websocket"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type server struct {
	*httptest.Server
	db     *gorm.DB
	tokens *utils.TokenManager
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.OpenInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tokens := utils.NewTokenManager("test-secret", time.Hour)
	users := services.NewUserService(db, tokens)
	messages := services.NewMessageService(db)
	verifier := services.NewTokenVerifier(tokens, users)
	hub := websocket.NewHub(logger)

	router := Setup(Dependencies{
		DB:             db,
		Logger:         logger,
		AllowedOrigins: []string{"http://localhost:3000"},
		Verifier:       verifier,
		Users:          users,
		Rooms:          services.NewRoomService(db, users),
		Messages:       messages,
		Gateway:        websocket.NewGateway(hub, verifier, messages, []string{"http://localhost:3000"}, logger),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{Server: srv, db: db, tokens: tokens}
}

func (s *server) createUser(t *testing.T, id string) string {
	t.Helper()
	require.NoError(t, s.db.Create(&models.User{ID: id, FullName: strings.ToUpper(id), Email: id + "@example.com"}).Error)
	token, err := s.tokens.GenerateToken(id)
	require.NoError(t, err)
	return token
}

func (s *server) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (s *server) dial(t *testing.T, token string) *gorilla.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *gorilla.Conn, eventType string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": eventType, "payload": payload}))
}

func expect(t *testing.T, conn *gorilla.Conn, eventType string, into interface{}) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env websocket.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, eventType, env.Type, string(env.Payload))
	require.NoError(t, json.Unmarshal(env.Payload, into))
	return env.Payload
}

func TestChatScenario(t *testing.T) {
	srv := newServer(t)
	u1 := srv.createUser(t, "u1")
	u2 := srv.createUser(t, "u2")

	status, body := srv.request(t, http.MethodPost, "/chat/createRoom", u1, map[string]string{"friend_id": "u2"})
	require.Equal(t, http.StatusCreated, status)
	room := body["room"].(map[string]interface{})
	assert.Equal(t, "u1_u2", room["room_key"])
	roomID := room["id"].(string)

	status, body = srv.request(t, http.MethodPost, "/chat/createRoom", u2, map[string]string{"friend_id": "u1"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, roomID, body["room"].(map[string]interface{})["id"])

	c1 := srv.dial(t, u1)
	c2 := srv.dial(t, u2)

	for _, conn := range []*gorilla.Conn{c1, c2} {
		emit(t, conn, websocket.EventJoinRoom, roomID)
		var prev []models.Message
		raw := expect(t, conn, websocket.EventPreviousMessages, &prev)
		assert.JSONEq(t, `[]`, string(raw))
	}

	emit(t, c1, websocket.EventSendMessage, websocket.SendMessagePayload{Text: "hello", RoomID: roomID, UserID: "u1"})
	for _, conn := range []*gorilla.Conn{c1, c2} {
		var msg websocket.NewMessagePayload
		expect(t, conn, websocket.EventNewMessage, &msg)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "u1", msg.SenderID)
	}

	// A late joiner gets the stored history.
	late := srv.dial(t, u2)
	emit(t, late, websocket.EventJoinRoom, roomID)
	var prev []models.Message
	expect(t, late, websocket.EventPreviousMessages, &prev)
	require.Len(t, prev, 1)
	assert.Equal(t, "hello", prev[0].Content)
	assert.Equal(t, "u1", prev[0].SenderID)

	// REST sends reach the joined sockets too.
	status, _ = srv.request(t, http.MethodPost, "/chat/rooms/"+roomID+"/messages", u2, map[string]string{"text": "hi back"})
	require.Equal(t, http.StatusCreated, status)
	var msg websocket.NewMessagePayload
	expect(t, late, websocket.EventNewMessage, &msg)
	assert.Equal(t, "hi back", msg.Content)

	status, body = srv.request(t, http.MethodGet, "/chat/getUserRooms", u2, nil)
	require.Equal(t, http.StatusOK, status)
	rooms := body["rooms"].([]interface{})
	require.Len(t, rooms, 1)
	summary := rooms[0].(map[string]interface{})
	assert.Equal(t, "u1", summary["other_participant"].(map[string]interface{})["id"])
	assert.Equal(t, "hi back", summary["last_message"].(map[string]interface{})["content"])

	status, body = srv.request(t, http.MethodGet, "/chat/rooms/"+roomID+"/messages", u1, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 2)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newServer(t)

	for _, path := range []string{"/chat/getUserRooms", "/chat/rooms/x/messages"} {
		status, body := srv.request(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.NotEmpty(t, body["error"])
	}

	status, _ := srv.request(t, http.MethodPost, "/chat/createRoom", "not-a-token", map[string]string{"friend_id": "u2"})
	assert.Equal(t, http.StatusUnauthorized, status)

	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.ErrorIs(t, err, gorilla.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginThenConnect(t *testing.T) {
	srv := newServer(t)

	status, body := srv.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"full_name": "Grace Hopper",
		"email":     "grace@example.com",
		"password":  "cobol1959",
	})
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, body["token"])

	status, body = srv.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "grace@example.com",
		"password": "cobol1959",
	})
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	status, body = srv.request(t, http.MethodGet, "/chat/getUserRooms", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["rooms"])

	conn := srv.dial(t, token)
	emit(t, conn, websocket.EventJoinRoom, "missing")
	var errPayload websocket.ErrorPayload
	expect(t, conn, websocket.EventError, &errPayload)
	assert.Equal(t, websocket.CodeRoomNotFound, errPayload.Code)
}

func TestHealthzAndSwagger(t *testing.T) {
	srv := newServer(t)

	status, body := srv.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/chat/createRoom")
}

func TestCORS(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/chat/getUserRooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	header.Set("Authorization", "Bearer "+srv.createUser(t, "u1"))
	_, resp, err = gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.ErrorIs(t, err, gorilla.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
