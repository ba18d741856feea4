package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"truth-dare-backend/internal/config"
	"truth-dare-backend/internal/handlers"
	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/models"
	"truth-dare-backend/internal/repository"
	"truth-dare-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.1.0"

// Options holds command line settings
type Options struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCmd creates the root command. Flags can also be set through
// TRUTHDARE_* environment variables.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	v := viper.New()
	v.SetEnvPrefix("TRUTHDARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "truth-dare-backend",
		Short:   "Matchmaking and turn-based truth or dare game server.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the YAML configuration file (env: TRUTHDARE_CONFIG)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "override log.level from the config file (env: TRUTHDARE_LOG_LEVEL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server failed")
		stop()
		os.Exit(1)
	}
}

// Run starts the server and blocks until ctx is cancelled
func Run(ctx context.Context, opts *Options) error {
	// Load configuration
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		return err
	}
	log.Info().Msg("Database connection established")

	m := metrics.New(cfg.Metrics.Namespace)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	questions, err := loadQuestions(ctx, cfg.Game.QuestionSource, questionRepo)
	if err != nil {
		return err
	}
	bank := services.NewQuestionBank(questions)
	log.Info().
		Str("source", cfg.Game.QuestionSource).
		Int("truths", bank.Size(models.ChallengeTruth)).
		Int("dares", bank.Size(models.ChallengeDare)).
		Msg("Question bank loaded")

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)

	var pusher services.Pusher
	if cfg.APNs.Enabled {
		apns, err := services.NewAPNsPusher(services.APNsConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		}, userRepo, m)
		if err != nil {
			return fmt.Errorf("failed to create push service: %w", err)
		}
		pusher = apns
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs push enabled")
	}

	wsHub := services.NewWSHub(pusher, m)
	coordinator := services.NewTurnCoordinator(services.TurnCoordinatorConfig{
		Pool:              services.NewWaitingPool(services.PairingOrder(cfg.Game.PairingOrder)),
		Sessions:          services.NewSessionStore(),
		Questions:         bank,
		DifficultyCeiling: cfg.Game.DifficultyCeiling,
		Metrics:           m,
	})

	if cfg.AWS.S3Bucket != "" {
		archive, err := services.NewTranscriptArchive(ctx, services.ArchiveConfig{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		}, m)
		if err != nil {
			return fmt.Errorf("failed to create transcript archive: %w", err)
		}
		coordinator.OnSessionEnded(archive.Hook())
		log.Info().Str("bucket", cfg.AWS.S3Bucket).Msg("Transcript archive enabled")
	}

	coordinator.StartJanitor(ctx, cfg.Game.SessionIdleTimeout, cfg.Game.JanitorInterval, wsHub.Dispatch)

	// Setup router
	router := handlers.NewRouter(handlers.RouterDeps{
		UserService:    userService,
		Coordinator:    coordinator,
		Hub:            wsHub,
		Metrics:        m,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("pairing_order", cfg.Game.PairingOrder).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown
	wsHub.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

func loadQuestions(ctx context.Context, source string, repo *repository.QuestionRepository) ([]models.Question, error) {
	defaults, err := services.DefaultQuestions()
	if err != nil {
		return nil, err
	}
	if source != "postgres" {
		return defaults, nil
	}

	seeded, err := repo.SeedIfEmpty(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to seed questions: %w", err)
	}
	if seeded {
		log.Info().Int("count", len(defaults)).Msg("Seeded question bank")
	}

	questions, err := repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	return questions, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
