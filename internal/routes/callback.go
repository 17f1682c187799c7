package routes

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fifire/topframe/internal/authflow"
	"github.com/fifire/topframe/internal/credstore"
)

var validate = validator.New()

// Approver links primary addresses to approved delegated keys.
type Approver interface {
	Approve(ctx context.Context, a authflow.Approval) error
}

type callbackRequest struct {
	UserMainAddress      string `json:"userMainAddress" validate:"required,eth_addr"`
	UserDelegatedAddress string `json:"userDelegatedAddress" validate:"required,eth_addr"`
	Signature            string `json:"signature" validate:"required,hexadecimal"`
}

// RegisterCallbackRoutes mounts the authorization service callback.
func RegisterCallbackRoutes(router fiber.Router, approver Approver) {
	router.Post("/authorize/callback", func(c *fiber.Ctx) error {
		var req callbackRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(req.Signature, "0x"), "0X"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid signature encoding")
		}

		err = approver.Approve(c.UserContext(), authflow.Approval{
			Primary:   common.HexToAddress(req.UserMainAddress),
			Delegated: common.HexToAddress(req.UserDelegatedAddress),
			Signature: sig,
		})
		switch {
		case err == nil:
			return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
		case errors.Is(err, authflow.ErrUnauthorizedCallback):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		case errors.Is(err, credstore.ErrNotFound), errors.Is(err, authflow.ErrCallbackDisabled):
			return fiber.NewError(http.StatusNotFound, "unknown delegated address")
		default:
			return fiber.NewError(http.StatusInternalServerError, "could not record approval")
		}
	})
}
