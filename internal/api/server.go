package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/ce-phus/atlas-path-relocation/internal/media"
	"github.com/ce-phus/atlas-path-relocation/internal/ws"
)

// NewServer wires the fiber app: health, metrics, the three websocket routes
// and, when the in-process media store is in use, the /media objects. The
// CRM's CRUD surface lives in another service.
func NewServer(gw *ws.Gateway, localMedia *media.MemoryStore) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat/:username", websocket.New(gw.ServeChat))
	app.Get("/ws/chatlist", websocket.New(gw.ServeChatList))
	app.Get("/ws/status", websocket.New(gw.ServeStatus))

	if localMedia != nil {
		app.Get("/media/*", func(c *fiber.Ctx) error {
			contentType, data, ok := localMedia.Get(c.Params("*"))
			if !ok {
				return fiber.ErrNotFound
			}
			c.Set(fiber.HeaderContentType, contentType)
			return c.Send(data)
		})
	}

	return app
}
