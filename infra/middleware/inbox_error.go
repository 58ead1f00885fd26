package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"inbox_server/core/domain"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// ReconnectPath starts the OAuth flow again for a revoked mailbox.
	ReconnectPath = "/auth/google/login"

	providerRetryAfter = 30 * time.Second
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ErrorDetail tells a client what failed and whether retrying can help.
// Retryable is set for PROVIDER_UNAVAILABLE only; RECONNECT_REQUIRED carries reconnect_url.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// resolveError maps any handler error onto a status and envelope detail.
// Pipeline sentinels that reach here unwrapped get the same codes the handlers use.
func resolveError(err error) (int, ErrorDetail) {
	if appErr := apperr.AsAppError(err); appErr == nil {
		switch {
		case errors.Is(err, domain.ErrCredentialInvalid):
			err = apperr.ReconnectRequired(err)
		case errors.Is(err, domain.ErrProviderUnavailable):
			err = apperr.ProviderUnavailable("mail provider", err)
		}
	}

	var appErr *apperr.AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		detail := ErrorDetail{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		switch appErr.Code {
		case apperr.CodeProviderUnavailable:
			detail.Retryable = true
		case apperr.CodeReconnectRequired:
			detail.Details = withDetail(detail.Details, "reconnect_url", ReconnectPath)
		}
		return appErr.Status, detail
	case errors.As(err, &fiberErr):
		return fiberErr.Code, ErrorDetail{Code: codeForStatus(fiberErr.Code), Message: fiberErr.Message}
	default:
		return fiber.StatusInternalServerError, ErrorDetail{
			Code:    apperr.CodeInternalError,
			Message: "An unexpected error occurred",
		}
	}
}

func withDetail(details map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out[key] = value
	return out
}

func writeError(c *fiber.Ctx, status int, detail ErrorDetail) error {
	if detail.Code == apperr.CodeProviderUnavailable {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(providerRetryAfter.Seconds())))
	}
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(ErrorResponse{
		Success:   false,
		Error:     detail,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorHandler renders every error in the ErrorResponse envelope.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, detail := resolveError(err)

		requestID, _ := c.Locals("request_id").(string)
		log := logger.WithField("request_id", requestID).
			WithField("error_code", detail.Code).
			WithError(err)
		switch {
		case detail.Code == apperr.CodeReconnectRequired:
			log.Info("[ErrorHandler] account needs reconnection")
		case status >= 500:
			log.Error("[ErrorHandler] %s", detail.Message)
		case status >= 400:
			log.Warn("[ErrorHandler] %s", detail.Message)
		}

		return writeError(c, status, detail)
	}
}

// RequestID middleware adds a unique request ID to each request
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		c.SetUserContext(logger.ContextWithRequestID(c.UserContext(), requestID))
		return c.Next()
	}
}

// RequestLogger logs each request and records its latency.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler runs after this middleware returns.
			status, _ = resolveError(err)
		}

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		metrics.RecordHTTPRequest(c.Method(), route, strconv.Itoa(status), duration)

		requestID, _ := c.Locals("request_id").(string)
		log := logger.WithFields(map[string]any{
			"request_id":  requestID,
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
			"ip":          c.IP(),
		})
		if accountID, ok := c.Locals(LocalAccountID).(int64); ok {
			log = log.WithField("account_id", accountID)
		}

		switch {
		case status >= 500:
			log.Error("Request failed: %s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("Request error: %s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Debug("Request completed: %s %s -> %d", c.Method(), c.Path(), status)
		}

		return err
	}
}

// Recover turns a panic into a 500 in the standard envelope.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Locals("request_id").(string)
				logger.WithFields(map[string]any{
					"request_id": requestID,
					"panic":      fmt.Sprintf("%v", r),
					"path":       c.Path(),
					"method":     c.Method(),
					"stack":      string(debug.Stack()),
				}).Error("[Recover] panic in handler")

				err = writeError(c, fiber.StatusInternalServerError, ErrorDetail{
					Code:    apperr.CodeInternalError,
					Message: "An unexpected error occurred",
				})
			}
		}()
		return c.Next()
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusRequestEntityTooLarge:
		return apperr.CodePayloadTooLarge
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	case fiber.StatusServiceUnavailable:
		return apperr.CodeProviderUnavailable
	default:
		if status >= 500 {
			return apperr.CodeInternalError
		}
		return apperr.CodeBadRequest
	}
}
