package models

import (
	"time"
)

// Message is one chat utterance. IDs are assigned in insertion order, so
// ordering by ID gives the room's append order.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"size:64;not null;index" json:"room_id"`
	SenderID  string    `gorm:"size:64;not null" json:"sender_id"`
	Sender    *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
