package middleware

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fifire/topframe/internal/frame"
)

// frameAttrs extracts who pressed which button from a frame action body.
// The values are client-reported and only logged.
func frameAttrs(c *fiber.Ctx) []any {
	if c.Method() != fiber.MethodPost || len(c.Body()) == 0 {
		return nil
	}
	var body struct {
		UntrustedData frame.UntrustedData `json:"untrustedData"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return nil
	}
	d := body.UntrustedData
	var attrs []any
	if d.FID != 0 {
		attrs = append(attrs, slog.Uint64("fid", d.FID))
	}
	if d.ButtonIndex != 0 {
		attrs = append(attrs, slog.Int("button", d.ButtonIndex))
	}
	if d.Address != "" {
		attrs = append(attrs, slog.String("address", d.Address))
	}
	return attrs
}

// Audit logs one line per frame interaction with the caller's fid and button.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID, _ := c.Locals(requestIDHeader).(string)
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		attrs = append(attrs, frameAttrs(c)...)
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("frame request completed", attrs...)
			return err
		}

		logger.Info("frame request completed", attrs...)
		return nil
	}
}
