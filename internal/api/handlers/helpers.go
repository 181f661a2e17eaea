package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// GetUserID returns the authenticated user id, or 0 when the request carries none.
func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}
