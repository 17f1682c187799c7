package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fifire/topframe/internal/authflow"
	"github.com/fifire/topframe/internal/frame"
	"github.com/fifire/topframe/internal/identity"
	"github.com/fifire/topframe/internal/leaderboard"
	"github.com/fifire/topframe/internal/logging"
	"github.com/fifire/topframe/internal/middleware"
)

const (
	checkStatusValue = "check-status"
	shareText        = "What's your place in the 🔥 top?"
	composeURL       = "https://warpcast.com/~/compose"
)

// Flow runs the authorization handshake for one interaction.
type Flow interface {
	Handle(ctx context.Context, in authflow.Input) authflow.Outcome
}

// Board reads leaderboard pages.
type Board interface {
	Page(ctx context.Context, offset, count int) []leaderboard.User
}

// FrameHandler serves the entry, leaderboard and authorization frames.
type FrameHandler struct {
	flow     Flow
	board    Board
	renderer *frame.Renderer
	title    string
	pageSize int
	shareURL string
	authURL  string
	logger   *slog.Logger
}

// FrameOptions holds the presentation settings of the frames.
type FrameOptions struct {
	Title    string
	PageSize int
	// ShareURL is embedded in the compose link of the Share button.
	ShareURL string
	// AuthURL is where the user approves the delegated key.
	AuthURL string
}

// NewFrameHandler wires the frame endpoints.
func NewFrameHandler(flow Flow, board Board, renderer *frame.Renderer, opts FrameOptions, logger *slog.Logger) *FrameHandler {
	return &FrameHandler{
		flow:     flow,
		board:    board,
		renderer: renderer,
		title:    opts.Title,
		pageSize: opts.PageSize,
		shareURL: opts.ShareURL,
		authURL:  opts.AuthURL,
		logger:   logger,
	}
}

// RegisterFrameRoutes mounts the frames under router. states decodes the
// signed button value.
func RegisterFrameRoutes(router fiber.Router, h *FrameHandler, states fiber.Handler) {
	router.Get("/", h.Entry)
	router.Post("/", h.Entry)
	router.Get("/next", states, h.Next)
	router.Post("/next", states, h.Next)
	router.Post("/authorize", states, h.Authorize)
}

func (h *FrameHandler) send(c *fiber.Ctx, f frame.Frame) error {
	doc, err := h.renderer.Render(f)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(doc)
}

// Entry renders the landing frame.
func (h *FrameHandler) Entry(c *fiber.Ctx) error {
	return h.send(c, frame.Frame{
		Title: h.title,
		Image: frame.Centered("TOP 🔥 Users", 64, "Find out your place in the top."),
		Buttons: []frame.Button{
			frame.Post("🔥 TOP", "/next", ""),
		},
	})
}

// Next renders one leaderboard page. The offset comes from the signed button value.
func (h *FrameHandler) Next(c *fiber.Ctx) error {
	offset, err := strconv.Atoi(middleware.ButtonValue(c))
	if err != nil || offset < 0 {
		offset = 0
	}

	users := h.board.Page(c.UserContext(), offset, h.pageSize)
	lines := make([]string, 0, len(users))
	for i, u := range users {
		lines = append(lines, fmt.Sprintf("%d. %s - 🔥 %s", offset+i+1, u.Username, u.Balance))
	}

	return h.send(c, frame.Frame{
		Title: h.title,
		Image: frame.View{Lines: lines, LineSize: 20, Align: frame.AlignLeft},
		Buttons: []frame.Button{
			frame.Post("Next", "/next", strconv.Itoa(offset+h.pageSize)),
			frame.Link("🔗 Share", h.shareLink()),
			frame.Post("Save List", "/authorize", ""),
		},
	})
}

func (h *FrameHandler) shareLink() string {
	q := url.Values{}
	q.Set("text", shareText)
	q.Set("embeds[]", h.shareURL)
	return composeURL + "?" + q.Encode()
}

// Authorize runs the delegated authorization handshake for the posting user.
func (h *FrameHandler) Authorize(c *fiber.Ctx) error {
	action, err := frame.ParseAction(c.Body())
	if err != nil {
		return h.send(c, h.errorFrame(fmt.Sprintf("Error: %s", err.Error()), false))
	}
	primary, err := identity.ParseAddress(action.UntrustedData.Address)
	if err != nil {
		return h.send(c, h.errorFrame(fmt.Sprintf("Error: %s", err.Error()), false))
	}
	msg, err := action.MessageBytes()
	if err != nil {
		return h.send(c, h.errorFrame(fmt.Sprintf("Error: %s", err.Error()), false))
	}

	out := h.flow.Handle(c.UserContext(), authflow.Input{
		Primary:     primary,
		CheckStatus: middleware.ButtonValue(c) == checkStatusValue,
		Message:     msg,
	})
	logging.FromContext(c.UserContext(), h.logger).Debug("authorize interaction", "primary", primary.Hex(), "state", out.State.String(), "action", out.Action.String())

	return h.send(c, h.authorizeFrame(out))
}

func (h *FrameHandler) authorizeFrame(out authflow.Outcome) frame.Frame {
	checkStatus := frame.Post("🔁 Check Status", "/authorize", checkStatusValue)

	switch out.State {
	case authflow.StateAuthorized:
		return frame.Frame{
			Title:   h.title,
			Image:   frame.Centered("✅ Done!", 48),
			Buttons: []frame.Button{frame.Post("OK", "/", "")},
		}
	case authflow.StatePending:
		if out.Action == authflow.ActionWait {
			return frame.Frame{
				Title:   h.title,
				Image:   frame.Centered("⏳ Waiting...", 48),
				Buttons: []frame.Button{checkStatus, frame.Reset("🏠 Home")},
			}
		}
		buttons := []frame.Button{checkStatus}
		if h.authURL != "" {
			buttons = append([]frame.Button{frame.Link("🐙 Authorize", h.authURL)}, buttons...)
		}
		return frame.Frame{
			Title:   h.title,
			Image:   frame.Centered(fmt.Sprintf("⚠️Click \"Authorize\" and enter the number %s.", out.Answer), 36),
			Buttons: buttons,
		}
	default:
		return h.errorFrame(out.ErrorText, out.Retryable)
	}
}

func (h *FrameHandler) errorFrame(text string, retryable bool) frame.Frame {
	buttons := []frame.Button{frame.Reset("🏠 Home")}
	if retryable {
		buttons = append([]frame.Button{frame.Post("🔁 Retry", "/authorize", "")}, buttons...)
	}
	return frame.Frame{
		Title:   h.title,
		Image:   frame.Centered("Error", 48, text),
		Buttons: buttons,
	}
}
