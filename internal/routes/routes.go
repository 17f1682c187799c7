package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fifire/topframe/internal/authflow"
	"github.com/fifire/topframe/internal/authreq"
	"github.com/fifire/topframe/internal/config"
	"github.com/fifire/topframe/internal/credstore"
	"github.com/fifire/topframe/internal/frame"
	"github.com/fifire/topframe/internal/keys"
	"github.com/fifire/topframe/internal/leaderboard"
	"github.com/fifire/topframe/internal/middleware"
	"github.com/fifire/topframe/internal/notification"
	"github.com/fifire/topframe/internal/ratelimit"
)

// frameStateTTL bounds how long a rendered button stays valid.
const frameStateTTL = 24 * time.Hour

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	switch d.Cfg.StoreBackend {
	case config.BackendRedis:
		if d.Cache == nil {
			return fmt.Errorf("redis is required when STORE_BACKEND=%s", d.Cfg.StoreBackend)
		}
	case config.BackendPostgres:
		if d.DB == nil {
			return fmt.Errorf("database is required when STORE_BACKEND=%s", d.Cfg.StoreBackend)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services
	appSigner, err := keys.SignerFromHex(d.Cfg.AppPrivateKey)
	if err != nil {
		return fmt.Errorf("app signer: %w", err)
	}
	store, err := newStore(d)
	if err != nil {
		return err
	}

	board := leaderboard.NewClient(d.Cfg.LeaderboardURL, d.Cfg.HTTPTimeout, d.Logger)
	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.Cfg.SaveEndpointURL != "" {
		notifier = notification.NewSaveNotifier(d.Cfg.SaveEndpointURL, appSigner.Address(), d.Cfg.HTTPTimeout)
	}
	completion := notification.NewCompletionNotifier(board, notifier, d.Cfg.SnapshotCount, d.Logger)

	opts := []authflow.Option{authflow.WithLimiter(ratelimit.New(d.Cache, d.Cfg.AuthRateLimit))}
	if d.Cfg.AuthServiceAddress != "" {
		if !common.IsHexAddress(d.Cfg.AuthServiceAddress) {
			return fmt.Errorf("AUTH_SERVICE_ADDRESS is not an address: %q", d.Cfg.AuthServiceAddress)
		}
		opts = append(opts, authflow.WithAuthority(common.HexToAddress(d.Cfg.AuthServiceAddress)))
	}
	flow := authflow.NewService(
		store,
		keys.BIP39Generator{},
		authreq.NewClient(d.Cfg.AuthServiceURL, d.Cfg.HTTPTimeout),
		appSigner,
		completion,
		d.Logger,
		opts...,
	)

	secret := []byte(d.Cfg.FrameStateSecret)
	if len(secret) == 0 {
		d.Logger.Warn("FRAME_STATE_SECRET not set, using an ephemeral secret")
		secret = []byte(uuid.NewString())
	}
	states := frame.NewStateCodec(secret, frameStateTTL)
	renderer := frame.NewRenderer(d.Cfg.PublicURL+"/api", states)

	shareURL := d.Cfg.ShareURL
	if shareURL == "" {
		shareURL = d.Cfg.PublicURL + "/api"
	}
	frames := NewFrameHandler(flow, board, renderer, FrameOptions{
		Title:    d.Cfg.AppName,
		PageSize: d.Cfg.LeaderboardPageSize,
		ShareURL: shareURL,
		AuthURL:  d.Cfg.AppAuthURL,
	}, d.Logger)

	// Frame routes
	api := app.Group("/api")
	RegisterFrameRoutes(api, frames, middleware.FrameState(states))
	if flow.CallbackEnabled() {
		RegisterCallbackRoutes(api, flow)
	}

	return nil
}

func newStore(d Deps) (*credstore.Store, error) {
	var repo credstore.Repository
	switch d.Cfg.StoreBackend {
	case config.BackendRedis:
		repo = credstore.NewRedisRepository(d.Cache)
	case config.BackendPostgres:
		pg := credstore.NewPostgresRepository(d.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("credential schema: %w", err)
		}
		repo = pg
	default:
		repo = credstore.NewMemoryRepository()
	}

	opts := []credstore.Option{credstore.WithTTL(d.Cfg.CredentialTTL)}
	if len(d.Cfg.CredentialSealKey) > 0 {
		sealer, err := credstore.NewAEADSealer(d.Cfg.CredentialSealKey)
		if err != nil {
			return nil, fmt.Errorf("credential sealer: %w", err)
		}
		opts = append(opts, credstore.WithSealer(sealer))
	}
	return credstore.New(repo, opts...), nil
}
