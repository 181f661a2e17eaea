package service

import (
	"errors"
	"log/slog"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrAlreadyProcessing = errors.New("already processing")
	ErrAccountNotFound   = errors.New("social account not found")
	ErrLinkNotFound      = errors.New("account is not linked to post")
)

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
