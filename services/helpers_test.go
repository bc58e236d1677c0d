package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/CUknot/nexus_chat/database"
	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	tokens   *utils.TokenManager
	users    *UserService
	rooms    *RoomService
	messages *MessageService
	verifier *TokenVerifier
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tokens := utils.NewTokenManager("test-secret", time.Hour)
	users := NewUserService(db, tokens)
	return &testEnv{
		db:       db,
		tokens:   tokens,
		users:    users,
		rooms:    NewRoomService(db, users),
		messages: NewMessageService(db),
		verifier: NewTokenVerifier(tokens, users),
	}
}

func (e *testEnv) createUser(t *testing.T, id, name string) *models.User {
	t.Helper()
	user := &models.User{ID: id, FullName: name, Email: id + "@example.com"}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createRoom(t *testing.T, a, b string) *models.Room {
	t.Helper()
	room, _, err := e.rooms.ResolveOrCreateRoom(context.Background(), a, b)
	require.NoError(t, err)
	return room
}
