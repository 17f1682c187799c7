package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Get issues a GET request and returns the status code and body.
func Get(ctx context.Context, url string, timeout time.Duration) (int, []byte, error) {
	return do(ctx, fiber.Get(url), timeout)
}

// PostJSON encodes body as JSON and POSTs it to url.
func PostJSON(ctx context.Context, url string, body any, timeout time.Duration) (int, []byte, error) {
	return do(ctx, fiber.Post(url).JSON(body), timeout)
}

func do(ctx context.Context, agent *fiber.Agent, timeout time.Duration) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, nil, context.DeadlineExceeded
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if err := agent.Parse(); err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return code, body, errors.Join(errs...)
	}
	return code, body, nil
}
