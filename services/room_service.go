package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/CUknot/nexus_chat/models"
	"gorm.io/gorm"
)

// RoomSummary is one entry of a user's conversation list.
type RoomSummary struct {
	Room             models.Room     `json:"room"`
	OtherParticipant *models.User    `json:"other_participant"`
	LastMessage      *models.Message `json:"last_message"`
}

// RoomService resolves two-party rooms and lists a user's rooms.
type RoomService struct {
	db    *gorm.DB
	users *UserService
}

func NewRoomService(db *gorm.DB, users *UserService) *RoomService {
	return &RoomService{db: db, users: users}
}

// RoomKey returns the canonical key for the unordered pair {a, b}.
func RoomKey(a, b string) string {
	first, second := canonicalPair(a, b)
	return first + "_" + second
}

func canonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ResolveOrCreateRoom returns the room shared by requesterID and
// otherUserID, creating it when absent. created reports whether this call
// inserted the room.
func (s *RoomService) ResolveOrCreateRoom(ctx context.Context, requesterID, otherUserID string) (*models.Room, bool, error) {
	if otherUserID == "" {
		return nil, false, ErrMissingParticipant
	}
	if otherUserID == requesterID {
		return nil, false, fmt.Errorf("%w: cannot open a room with yourself", ErrInvalidParticipant)
	}

	exists, err := s.users.Exists(ctx, otherUserID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, fmt.Errorf("%w: user %s does not exist", ErrInvalidParticipant, otherUserID)
	}

	key := RoomKey(requesterID, otherUserID)
	room, err := s.findByKey(ctx, key)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, false, err
	}

	a, b := canonicalPair(requesterID, otherUserID)
	room = &models.Room{ParticipantA: a, ParticipantB: b, RoomKey: key}
	if err := s.create(ctx, room); err != nil {
		if !errors.Is(err, ErrDuplicateRoom) {
			return nil, false, err
		}
		// Another request created the pair's room first.
		existing, findErr := s.findByKey(ctx, key)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}

	created, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *RoomService) create(ctx context.Context, room *models.Room) error {
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateRoom, room.RoomKey)
		}
		return err
	}
	return nil
}

func (s *RoomService) findByKey(ctx context.Context, key string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("UserA").
		Preload("UserB").
		Where("room_key = ?", key).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// GetRoom returns the room with its participants populated.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("UserA").
		Preload("UserB").
		First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ListRoomsForUser returns every room userID takes part in, most recently
// active first, each with the other participant and a preview of its
// latest message.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID string) ([]RoomSummary, error) {
	db := s.db.WithContext(ctx)

	var rooms []models.Room
	err := db.
		Preload("UserA").
		Preload("UserB").
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("room_key ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	lastByRoom, err := latestMessages(db, rooms)
	if err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, RoomSummary{
			Room:             room,
			OtherParticipant: room.OtherUser(userID),
			LastMessage:      lastByRoom[room.ID],
		})
	}
	return summaries, nil
}

// latestMessages loads the newest message of every room that has one, in
// a single query.
func latestMessages(db *gorm.DB, rooms []models.Room) (map[string]*models.Message, error) {
	roomIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		if room.LastMessageAt != nil {
			roomIDs = append(roomIDs, room.ID)
		}
	}
	latest := make(map[string]*models.Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return latest, nil
	}

	newest := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("room_id IN ?", roomIDs).
		Group("room_id")

	var messages []models.Message
	if err := db.Preload("Sender").Where("id IN (?)", newest).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load last messages: %w", err)
	}
	for i := range messages {
		latest[messages[i].RoomID] = &messages[i]
	}
	return latest, nil
}
