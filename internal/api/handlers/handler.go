package handlers

import (
	"fmt"
	"strconv"

	"washery_chat/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DebugLogFlag switch debug logging of the running client
// @Summary Toggle debug log
// @Tags Shared
// @Param service query string false "Label written to the log, default chat_client"
// @Param status query bool true "Debug on or off"
// @Success 200 {string} string "service[chat_client]: debug mode is : true"
// @Failure 400 {string} string "status must be true or false"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	status, err := strconv.ParseBool(c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("status must be true or false")
	}
	service := c.Query("service", "chat_client")

	logger.Log.SetDebugMode(status)
	logger.Log.Info("debug mode changed", zap.String("service", service), zap.Bool("debug", status))
	return c.SendString(fmt.Sprintf("service[%s]: debug mode is : %t", service, status))
}
