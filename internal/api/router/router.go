package router

import (
	"washery_chat/internal/api/handlers"
	"washery_chat/pkg/config"
	"washery_chat/pkg/metrics"
	"washery_chat/pkg/middlewares"
	"washery_chat/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/pprof"
)

// RegisterRoutes 注册 debug / state 路由
// @title Washery Chat Client Debug API
// @version 1.0
// @description Read-only view of the chat client state
// @host localhost:8090
// @BasePath /
func RegisterRoutes(app *fiber.App, stateHandler *handlers.StateHandler, protect bool) {
	if !config.IsProduction() {
		// /debug/pprof/*
		app.Use(pprof.New())
	}

	app.Get("/", stateHandler.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	stateRoutes := app.Group("/state")
	if protect {
		stateRoutes.Use(middlewares.JWTMiddleware(token.RoleAdmin))
	}
	stateRoutes.Get("/status", stateHandler.Status)
	stateRoutes.Get("/conversations", stateHandler.Conversations)
	stateRoutes.Get("/groups", stateHandler.Groups)
	stateRoutes.Get("/notifications", stateHandler.Notifications)
	stateRoutes.Post("/notifications/read", stateHandler.MarkNotificationsRead)
	stateRoutes.Get("/presence", stateHandler.Presence)
	stateRoutes.Get("/typing/:threadID", stateHandler.Typing)
	stateRoutes.Get("/links/:threadID", stateHandler.Links)
	stateRoutes.Post("/links/:threadID/refresh", stateHandler.RefreshLinks)
}
