package api

import (
	"errors"
	"net/http"

	"support-chat/backend/internal/service"
	apperrors "support-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the error body
const (
	CodeChatNotFound       = "CHAT_NOT_FOUND"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeInvalidRole        = "INVALID_ROLE"
	CodeInvalidChatID      = "INVALID_CHAT_ID"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// toAppError maps service errors onto HTTP errors
func toAppError(err error) *apperrors.AppError {
	var (
		appErr *apperrors.AppError
		valErr *service.ValidationError
		stErr  *service.StorageError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, service.ErrSessionNotFound):
		return apperrors.NewNotFoundError(CodeChatNotFound, "Chat session not found").Wrap(err)
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return apperrors.NewError(http.StatusRequestEntityTooLarge, CodeFileTooLarge, "File is too large").Wrap(err)
	case errors.As(err, &valErr):
		code := CodeInvalidRequest
		switch valErr.Field {
		case "message":
			code = CodeEmptyMessage
		case "sender", "role":
			code = CodeInvalidRole
		}
		return apperrors.NewBadRequestError(code, valErr.Error()).Wrap(err)
	case errors.As(err, &stErr):
		return apperrors.NewInternalServerError(CodeStorageUnavailable, "Chat storage is unavailable").Wrap(err)
	default:
		return apperrors.FromError(err)
	}
}

// abortWithError records err for the error handler middleware and stops the chain
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}
