package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/failure"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return failure.HTTPStatus(err)
}

func codeFor(err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case http.StatusUnauthorized:
			return "unauthenticated"
		case http.StatusTooManyRequests:
			return "rate_limited"
		case http.StatusConflict:
			return "conflict"
		case http.StatusUnprocessableEntity:
			return "idempotency_mismatch"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusMethodNotAllowed:
			return "method_not_allowed"
		}
		if fe.Code < 500 {
			return "invalid_request"
		}
		return "internal"
	}
	return failure.Code(err)
}

// ErrorHandler renders errors as {"error", "code"} JSON with the status of the
// error's kind. Internal details of 500s are not echoed to the caller.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError && !errors.Is(err, failure.ErrCompensationFailed) {
			var fe *fiber.Error
			if !errors.As(err, &fe) {
				logger.Error("unhandled error", slog.String("request_id", GetRequestID(c)), slog.Any("error", err))
				msg = "internal server error"
			}
		}
		return c.Status(status).JSON(errorBody{
			Error:     msg,
			Code:      codeFor(err),
			RequestID: GetRequestID(c),
		})
	}
}
