package controllers

import (
	"net/http"

	"github.com/CUknot/nexus_chat/middleware"
	"github.com/CUknot/nexus_chat/services"
	"github.com/gin-gonic/gin"
)

type CreateRoomInput struct {
	FriendID string `json:"friend_id" example:"01HZX3J0M3Q8R5T6V7W8X9Y0Z1"`
}

type RoomController struct {
	rooms *services.RoomService
}

func NewRoomController(rooms *services.RoomService) *RoomController {
	return &RoomController{rooms: rooms}
}

// CreateRoom godoc
// @Summary Open a conversation with another user
// @Description Returns the room shared with friend_id, creating it when it does not exist yet
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param room body CreateRoomInput true "Other participant"
// @Success 201 {object} map[string]interface{} "Room created successfully"
// @Failure 400 {object} map[string]string "Missing or invalid participant"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]interface{} "Room already exists"
// @Failure 500 {object} map[string]string "Server error"
// @Router /chat/createRoom [post]
func (ctl *RoomController) CreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(string)

	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, created, err := ctl.rooms.ResolveOrCreateRoom(c.Request.Context(), userID, input.FriendID)
	if err != nil {
		respondError(c, err, "Failed to create room")
		return
	}

	if !created {
		c.JSON(http.StatusConflict, gin.H{
			"message": "Room already exists",
			"room":    room,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    room,
	})
}

// GetUserRooms godoc
// @Summary List the authenticated user's rooms
// @Description Returns every room the user takes part in, most recently active first, with the other participant and the latest message
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /chat/getUserRooms [get]
func (ctl *RoomController) GetUserRooms(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(string)

	rooms, err := ctl.rooms.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch rooms")
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
