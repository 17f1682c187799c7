package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fifire/topframe/internal/frame"
)

const frameStateLocal = "frame_state"

// FrameState verifies the signed button value in the request and exposes it
// through ButtonValue. Missing or tampered tokens yield an empty value.
func FrameState(codec *frame.StateCodec) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(frameStateLocal, codec.ValueOr(c.Query(frame.StateParam), ""))
		return c.Next()
	}
}

// ButtonValue returns the value verified by FrameState.
func ButtonValue(c *fiber.Ctx) string {
	v, _ := c.Locals(frameStateLocal).(string)
	return v
}
