package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/user-directory/backend/internal/common/config"
	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/db"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	userrepo "github.com/AlibekovAA/user-directory/backend/internal/user/repository"
)

type App struct {
	Log         *logger.Logger
	Pool        *pgxpool.Pool
	UserRepo    *userrepo.PgRepository
	OutboxStore *outbox.PgStore
}

type UserDirApp struct {
	App
	Config config.UserDirConfig
}

// NewUserDirApp connects to the database, applies migrations and starts pool
// metrics. The metrics goroutine stops with ctx.
func NewUserDirApp(ctx context.Context) (*UserDirApp, error) {
	log, err := initializeLogger("userdir")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadUserDirConfig()
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return nil, err
	}

	app, err := initializeApp(ctx, log, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return &UserDirApp{
		App:    *app,
		Config: cfg,
	}, nil
}

func initializeApp(ctx context.Context, log *logger.Logger, databaseURL string) (*App, error) {
	pool, err := db.NewPool(ctx, log, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	if err := db.RunMigrations(ctx, log, databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	db.StartPoolMetrics(ctx, pool, constants.DBPoolMetricsInterval)

	return &App{
		Log:         log,
		Pool:        pool,
		UserRepo:    userrepo.NewPgRepository(pool),
		OutboxStore: outbox.NewPgStore(pool),
	}, nil
}

func initializeLogger(serviceName string) (*logger.Logger, error) {
	return logger.New(os.Getenv("LOG_DIR"), serviceName, os.Getenv("LOG_LEVEL"))
}
