package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/CUknot/nexus_chat/middleware"
	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/services"
	"github.com/gin-gonic/gin"
)

// MessageSender persists a message and delivers it to the room's live
// connections.
type MessageSender interface {
	SendMessage(ctx context.Context, senderID, roomID, text, tempID string) (*models.Message, error)
}

type CreateMessageInput struct {
	Text   string `json:"text" example:"Hello there!"`
	TempID string `json:"tempId" example:"c-42"`
}

type MessageController struct {
	messages *services.MessageService
	sender   MessageSender
}

func NewMessageController(messages *services.MessageService, sender MessageSender) *MessageController {
	return &MessageController{messages: messages, sender: sender}
}

// GetRoomMessages godoc
// @Summary Get the messages of a room
// @Description Returns the room's messages oldest first. With limit, only the latest limit messages are returned.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param limit query int false "Return only the latest N messages"
// @Success 200 {object} map[string]interface{} "List of messages"
// @Failure 400 {object} map[string]string "Invalid limit"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /chat/rooms/{id}/messages [get]
func (ctl *MessageController) GetRoomMessages(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(string)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	messages, err := ctl.messages.GetHistoryForUser(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		respondError(c, err, "Failed to fetch messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// CreateMessage godoc
// @Summary Send a message to a room
// @Description Stores the message and pushes it to every connection that joined the room
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param message body CreateMessageInput true "Message"
// @Success 201 {object} map[string]interface{} "Message created"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /chat/rooms/{id}/messages [post]
func (ctl *MessageController) CreateMessage(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(string)

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Detached so the message is stored even if the client goes away.
	message, err := ctl.sender.SendMessage(context.WithoutCancel(c.Request.Context()), userID, c.Param("id"), input.Text, input.TempID)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}
