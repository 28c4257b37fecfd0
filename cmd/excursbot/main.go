package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ingria/excursbot/internal/api"
	"github.com/ingria/excursbot/internal/content"
	"github.com/ingria/excursbot/internal/engine"
	"github.com/ingria/excursbot/internal/models"
	"github.com/ingria/excursbot/internal/session"
	"github.com/ingria/excursbot/internal/store"
	"github.com/ingria/excursbot/internal/telegram"
	"github.com/ingria/excursbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for excursbot state data
	DefaultStateDir = "/var/lib/excursbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "excursbot.db"
	// DefaultContentPath is the default content script location
	DefaultContentPath = "text.yaml"
	// DefaultStoreDriver is the default session store backend
	DefaultStoreDriver = "s3"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if *flags.token == "" {
		slog.Error("TELEGRAM_TOKEN not set")
		os.Exit(1)
	}

	script, err := content.Load(*flags.contentPath)
	if err != nil {
		slog.Error("Failed to load content script", "error", err, "path", *flags.contentPath)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err, "driver", *flags.storeDriver)
		os.Exit(1)
	}

	client, err := telegram.NewClient(*flags.token)
	if err != nil {
		slog.Error("Failed to create Telegram client", "error", err)
		os.Exit(1)
	}

	renderer := telegram.NewRenderer(client)
	eng := engine.New(script, renderer, st)
	mw := session.NewMiddleware(st, models.NewSession)
	server := api.NewServer(mw, eng, api.WithAddr(*flags.apiAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping excursbot",
		"store_driver", *flags.storeDriver, "api_addr", *flags.apiAddr, "poll", *flags.poll, "stages", len(script.Stages))

	if *flags.poll {
		if me, err := client.GetMe(ctx); err != nil {
			slog.Error("Telegram credential check failed", "error", err)
			os.Exit(1)
		} else {
			slog.Info("Telegram bot authorized", "bot_id", me.ID, "bot_username", me.Username)
		}
		err = api.NewPoller(client, server).Run(ctx)
	} else {
		err = server.Run(ctx)
	}
	if err != nil {
		slog.Error("excursbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("excursbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	Token       string
	Bucket      string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	StoreDriver string
	DatabaseURL string
	StateDir    string
	ContentPath string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	token       *string
	bucket      *string
	s3Endpoint  *string
	storeDriver *string
	dbDSN       *string
	contentPath *string
	apiAddr     *string
	poll        *bool

	s3AccessKey string
	s3SecretKey string
}

// initializeLogger sets up structured logging; debug level is opt-in via
// EXCURSBOT_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("EXCURSBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Token:       os.Getenv("TELEGRAM_TOKEN"),
		Bucket:      os.Getenv("S3_STATES_BUCKET"),
		S3Endpoint:  util.GetenvDefault("S3_ENDPOINT", store.DefaultS3Endpoint),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		StoreDriver: util.GetenvDefault("SESSION_STORE_DRIVER", DefaultStoreDriver),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetenvDefault("EXCURSBOT_STATE_DIR", DefaultStateDir),
		ContentPath: util.GetenvDefault("CONTENT_PATH", DefaultContentPath),
		APIAddr:     util.GetenvDefault("API_ADDR", api.DefaultAddr),
	}

	// Default the sqlite driver to a database in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite in state dir", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_TOKEN_SET", config.Token != "",
		"S3_STATES_BUCKET", config.Bucket,
		"S3_ENDPOINT", config.S3Endpoint,
		"SESSION_STORE_DRIVER", config.StoreDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CONTENT_PATH", config.ContentPath,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		token:       flag.String("token", config.Token, "Telegram bot token (overrides $TELEGRAM_TOKEN)"),
		bucket:      flag.String("bucket", config.Bucket, "session bucket name (overrides $S3_STATES_BUCKET)"),
		s3Endpoint:  flag.String("s3-endpoint", config.S3Endpoint, "S3-compatible endpoint (overrides $S3_ENDPOINT)"),
		storeDriver: flag.String("store-driver", config.StoreDriver, "session store driver: s3, sqlite, postgres or memory (overrides $SESSION_STORE_DRIVER)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for sqlite/postgres drivers (overrides $DATABASE_URL)"),
		contentPath: flag.String("content", config.ContentPath, "path to the content script (overrides $CONTENT_PATH)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "webhook server address (overrides $API_ADDR)"),
		poll:        flag.Bool("poll", false, "run with getUpdates long polling instead of the webhook server"),
		s3AccessKey: config.S3AccessKey,
		s3SecretKey: config.S3SecretKey,
	}
	flag.Parse()
	return flags
}

// buildStore selects and initializes the session store backend.
func buildStore(flags Flags) (store.Store, error) {
	switch *flags.storeDriver {
	case "s3":
		return store.NewS3Store(
			store.WithBucket(*flags.bucket),
			store.WithEndpoint(*flags.s3Endpoint),
			store.WithCredentials(flags.s3AccessKey, flags.s3SecretKey),
		)
	case "sqlite":
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	case "memory":
		slog.Warn("Using in-memory session store; sessions will not survive restarts")
		return store.NewInMemoryStore(), nil
	default:
		return nil, &unknownDriverError{driver: *flags.storeDriver}
	}
}

type unknownDriverError struct {
	driver string
}

func (e *unknownDriverError) Error() string {
	return "unknown session store driver: " + e.driver
}
