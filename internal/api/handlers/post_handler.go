package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s service.PostPublisherService
}

func NewPostHandler(service service.PostPublisherService) *PostHandler {
	return &PostHandler{s: service}
}

// PublishPost publishes a post to every linked account immediately, bypassing its schedule.
func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil || postID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	results, err := h.s.PublishToAllPlatforms(c.Context(), int64(postID))
	if errors.Is(err, service.ErrPostNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}
	if err != nil {
		slog.Error("publish post failed", "post_id", postID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to publish post",
		})
	}

	resp := transfer.PublishPostResponse{PostID: int64(postID)}
	for _, r := range results {
		if r.InProgress {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": r.Error,
			})
		}
		resp.Results = append(resp.Results, transfer.PublishResultResponse{
			Platform:         string(r.Platform),
			AccountID:        r.AccountID,
			Success:          r.Success,
			PlatformPostID:   r.PlatformPostID,
			Error:            r.Error,
			Skipped:          r.Skipped,
			AlreadyPublished: r.AlreadyPublished,
		})
	}

	slog.Info("post published via api", "post_id", postID, "user_id", GetUserID(c))
	return c.JSON(resp)
}
