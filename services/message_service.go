package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CUknot/nexus_chat/models"
	"gorm.io/gorm"
)

// MessageService persists chat messages and reads room history.
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// AppendMessage stores content as a new message from senderID in roomID
// and returns it with the sender populated.
func (s *MessageService) AppendMessage(ctx context.Context, senderID, roomID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var message models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := loadRoom(tx, roomID)
		if err != nil {
			return err
		}
		if !room.HasParticipant(senderID) {
			return fmt.Errorf("%w: user %s in room %s", ErrNotParticipant, senderID, roomID)
		}

		message = models.Message{RoomID: room.ID, SenderID: senderID, Content: content}
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		if err := tx.Model(&models.Room{}).
			Where("id = ?", room.ID).
			Update("last_message_at", message.CreatedAt).Error; err != nil {
			return fmt.Errorf("touch room: %w", err)
		}

		return tx.Preload("Sender").First(&message, message.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// GetHistory returns all messages of roomID in append order.
func (s *MessageService) GetHistory(ctx context.Context, roomID string) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadRoom(db, roomID); err != nil {
		return nil, err
	}
	return history(db, roomID, 0)
}

// GetHistoryForUser is GetHistory restricted to the room's participants.
// A positive limit keeps only the latest limit messages.
func (s *MessageService) GetHistoryForUser(ctx context.Context, userID, roomID string, limit int) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	room, err := loadRoom(db, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: user %s in room %s", ErrNotParticipant, userID, roomID)
	}
	return history(db, roomID, limit)
}

func loadRoom(db *gorm.DB, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, ErrRoomNotFound
	}
	var room models.Room
	if err := db.First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		return nil, err
	}
	return &room, nil
}

func history(db *gorm.DB, roomID string, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit > 0 {
		// Latest limit messages, then back to oldest-first.
		if err := db.Preload("Sender").
			Where("room_id = ?", roomID).
			Order("id DESC").
			Limit(limit).
			Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		return messages, nil
	}

	if err := db.Preload("Sender").
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}
