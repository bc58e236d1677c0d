package routes

import (
	"log/slog"
	"net/http"

	"github.com/CUknot/nexus_chat/controllers"
	"github.com/CUknot/nexus_chat/middleware"
	"github.com/CUknot/nexus_chat/services"
	"github.com/CUknot/nexus_chat/websocket"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "github.com/CUknot/nexus_chat/docs"
)

// Dependencies are the wired services the router serves.
type Dependencies struct {
	DB             *gorm.DB
	Logger         *slog.Logger
	AllowedOrigins []string
	Verifier       services.IdentityVerifier
	Users          *services.UserService
	Rooms          *services.RoomService
	Messages       *services.MessageService
	Gateway        *websocket.Gateway
}

// Setup builds the HTTP router.
func Setup(d Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(middleware.CORS(d.AllowedOrigins))

	router.GET("/healthz", healthz(d.DB))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := controllers.NewAuthController(d.Users)
	rooms := controllers.NewRoomController(d.Rooms)
	messages := controllers.NewMessageController(d.Messages, d.Gateway)

	// Authentication routes
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", auth.Register)
		authGroup.POST("/login", auth.Login)
	}

	// Protected routes
	chat := router.Group("/chat")
	chat.Use(middleware.JWTAuth(d.Verifier))
	{
		chat.POST("/createRoom", rooms.CreateRoom)
		chat.GET("/getUserRooms", rooms.GetUserRooms)
		chat.GET("/rooms/:id/messages", messages.GetRoomMessages)
		chat.POST("/rooms/:id/messages", messages.CreateMessage)
	}

	// WebSocket route, authenticated during the handshake
	router.GET("/ws", d.Gateway.HandleConnection)

	return router
}

// healthz godoc
// @Summary Health check
// @Description Reports whether the server can reach its database
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string "Database unreachable"
// @Router /healthz [get]
func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			slog.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
