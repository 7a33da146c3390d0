package controller

import (
	"ai-library-agent/internal/pkg/logger"
	"ai-library-agent/internal/pkg/serverutils"
	internalWS "ai-library-agent/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IWebSocketController interface {
	RegisterRoutes(app fiber.Router)
	ServeWs(ctx *fiber.Ctx) error
}

type webSocketController struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewWebSocketController(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) IWebSocketController {
	return &webSocketController{
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (c *webSocketController) RegisterRoutes(app fiber.Router) {
	app.Get("/ws", c.ServeWs)
}

// ServeWs upgrades an authenticated connection. The token comes from the
// `token` query parameter (browsers) or the Authorization header.
func (c *webSocketController) ServeWs(ctx *fiber.Ctx) error {
	tokenStr := ctx.Query("token")
	if tokenStr == "" {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	userID, err := serverutils.ParseUserID(tokenStr, c.jwtSecret)
	if err != nil {
		c.logger.Warn("WebSocket", "Rejected handshake", map[string]interface{}{"error": err.Error()})
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("WebSocket", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(c.hub, conn, userID)
		c.logger.Info("WebSocket", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(ctx)
}
