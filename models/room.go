package models

import (
	"time"

	"github.com/CUknot/nexus_chat/utils"
	"gorm.io/gorm"
)

// Room is the single conversation between two users. ParticipantA is
// always the lexicographically smaller ID; RoomKey is "<A>_<B>".
type Room struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	ParticipantA  string     `gorm:"size:64;not null;index" json:"participant_a"`
	ParticipantB  string     `gorm:"size:64;not null;index" json:"participant_b"`
	RoomKey       string     `gorm:"size:160;not null;uniqueIndex" json:"room_key"`
	UserA         *User      `gorm:"foreignKey:ParticipantA" json:"user_a,omitempty"`
	UserB         *User      `gorm:"foreignKey:ParticipantB" json:"user_b,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Messages      []Message  `json:"messages,omitempty"`
}

// BeforeCreate assigns an ID to new rooms
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.NewULID()
	}
	return nil
}

// HasParticipant reports whether userID is one of the room's two users.
func (r *Room) HasParticipant(userID string) bool {
	return userID != "" && (r.ParticipantA == userID || r.ParticipantB == userID)
}

// OtherParticipant returns the ID of the user opposite userID.
func (r *Room) OtherParticipant(userID string) string {
	if r.ParticipantA == userID {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// OtherUser returns the populated user opposite userID, if loaded.
func (r *Room) OtherUser(userID string) *User {
	if r.ParticipantA == userID {
		return r.UserB
	}
	return r.UserA
}
