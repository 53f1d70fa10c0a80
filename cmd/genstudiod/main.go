package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lucentmedia/genstudio/internal/artifact"
	"github.com/lucentmedia/genstudio/internal/events"
	"github.com/lucentmedia/genstudio/internal/extjob"
	"github.com/lucentmedia/genstudio/internal/generation"
	"github.com/lucentmedia/genstudio/internal/httpapi"
	"github.com/lucentmedia/genstudio/internal/media"
	"github.com/lucentmedia/genstudio/internal/providers"
	"github.com/lucentmedia/genstudio/internal/store/gormstore"
	"github.com/lucentmedia/genstudio/pkg/ledger"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagArtifactDir    = "artifact-dir"

	defaultDatabaseURL = "sqlite:///tmp/genstudio.db"
	defaultListenAddr  = ":8080"
	defaultArtifactDir = "public/generated"

	defaultPollInitialDelay = 5 * time.Second
	defaultPollInterval     = 5 * time.Second
	defaultPollMaxAttempts  = 60
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	AllowedOrigins string
	ArtifactDir    string

	JWTSecret     string
	WebhookSecret string

	KafkaBrokers string

	ImageBaseURL string
	ImageModel   string
	ImageAPIKey  string

	PredictionBaseURL string
	EditModel         string
	AnimateModel      string
	PredictionAPIKey  string

	EncodeBaseURL     string
	EncodeLibraryID   string
	EncodeAccessKey   string
	EncodeCDNHostname string

	PollInitialDelay time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genstudiod: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "genstudiod",
		Short:         "Generation studio API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "database connection string (sqlite path or postgres URL)")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().String(flagArtifactDir, defaultArtifactDir, "directory for generated artifacts")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("GENSTUDIO")
	viper.AutomaticEnv()

	for configKey, flagName := range map[string]string{
		"database_url":    flagDatabaseURL,
		"listen_addr":     flagListenAddr,
		"allowed_origins": flagAllowedOrigins,
		"artifact_dir":    flagArtifactDir,
	} {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.ListenAddr = viper.GetString("listen_addr")
	cfg.AllowedOrigins = viper.GetString("allowed_origins")
	cfg.ArtifactDir = viper.GetString("artifact_dir")

	cfg.JWTSecret = viper.GetString("jwt_secret")
	cfg.WebhookSecret = viper.GetString("webhook_secret")
	cfg.KafkaBrokers = viper.GetString("kafka_brokers")

	cfg.ImageBaseURL = viper.GetString("image_base_url")
	cfg.ImageModel = viper.GetString("image_model")
	cfg.ImageAPIKey = viper.GetString("image_api_key")

	cfg.PredictionBaseURL = viper.GetString("prediction_base_url")
	cfg.EditModel = viper.GetString("edit_model")
	cfg.AnimateModel = viper.GetString("animate_model")
	cfg.PredictionAPIKey = viper.GetString("prediction_api_key")

	cfg.EncodeBaseURL = viper.GetString("encode_base_url")
	cfg.EncodeLibraryID = viper.GetString("encode_library_id")
	cfg.EncodeAccessKey = viper.GetString("encode_access_key")
	cfg.EncodeCDNHostname = viper.GetString("encode_cdn_hostname")

	cfg.PollInitialDelay = viper.GetDuration("poll_initial_delay")
	if cfg.PollInitialDelay <= 0 {
		cfg.PollInitialDelay = defaultPollInitialDelay
	}
	cfg.PollInterval = viper.GetDuration("poll_interval")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	cfg.PollMaxAttempts = viper.GetInt("poll_max_attempts")
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = defaultPollMaxAttempts
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if cfg.EncodeLibraryID == "" {
		return fmt.Errorf("encode library id is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := gormstore.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaBrokers != "" {
		kafkaPublisher := events.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = kafkaPublisher.Close() }()
		publisher = kafkaPublisher
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	walletService, err := ledger.NewService(gormstore.New(gormDB), clock,
		ledger.WithOperationLogger(events.NewLedgerAuditLogger(publisher, logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	artifactStore, err := artifact.NewDir(cfg.ArtifactDir, "/generated")
	if err != nil {
		return fmt.Errorf("artifact store init: %w", err)
	}

	poller, err := extjob.NewPoller(extjob.Config{
		InitialDelay: cfg.PollInitialDelay,
		Interval:     cfg.PollInterval,
		MaxAttempts:  cfg.PollMaxAttempts,
	}, extjob.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("poller init: %w", err)
	}

	imageGenerator := providers.NewImageGenerator(cfg.ImageBaseURL, cfg.ImageModel, cfg.ImageAPIKey, nil)
	animator := func(prompt string, imageURL string) extjob.Operation {
		return providers.NewVideoAnimateOperation(cfg.PredictionBaseURL, cfg.AnimateModel, cfg.PredictionAPIKey, prompt, imageURL, nil)
	}
	editor := func(prompt string, imageURLs []string) extjob.Operation {
		return providers.NewImageEditOperation(cfg.PredictionBaseURL, cfg.EditModel, cfg.PredictionAPIKey, prompt, imageURLs, nil)
	}

	encoder := providers.NewVideoStreamClient(cfg.EncodeBaseURL, cfg.EncodeLibraryID, cfg.EncodeAccessKey, cfg.EncodeCDNHostname, nil)
	reconciler, err := media.NewReconciler(gormstore.NewAssetStore(gormDB), encoder, media.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("reconciler init: %w", err)
	}

	orchestrator, err := generation.NewOrchestrator(walletService, gormstore.NewRequestStore(gormDB), artifactStore,
		generation.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("orchestrator init: %w", err)
	}

	resolver := func(kind string, payload httpapi.GenerateRequest) (generation.Workflow, error) {
		switch kind {
		case generation.KindPortrait:
			return generation.NewPortraitWorkflow(imageGenerator, animator, poller), nil
		case generation.KindImageEdit:
			return generation.NewImageEditWorkflow(editor, payload.SourceImageURLs, poller), nil
		default:
			return generation.Workflow{}, httpapi.ErrUnknownWorkflowKind
		}
	}

	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		JWTSecret:      cfg.JWTSecret,
		WebhookSecret:  cfg.WebhookSecret,
		LibraryID:      cfg.EncodeLibraryID,
		ArtifactDir:    artifactStore.Root(),
	}, logger, walletService, orchestrator, reconciler, resolver, publisher)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	return server.Run(ctx)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "genstudio.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
