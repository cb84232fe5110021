package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"together-backend/internal/config"
	"together-backend/internal/notify"
	"together-backend/internal/repository"
	"together-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:          "together",
	Short:        "Backend for the Together couples app",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		setupLogger(cfg.Log.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDB connects to PostgreSQL and optionally applies the schema
func openDB(ctx context.Context, migrate bool) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		log.Info().Msg("Database schema applied")
	}
	return db, nil
}

// buildNotifier wires email and push delivery for whatever is configured
func buildNotifier() services.Notifier {
	var (
		mail notify.EmailSender
		push notify.PushSender
	)

	if cfg.Email.SendGridAPIKey != "" {
		sg, err := notify.NewSendGrid(notify.SendGridConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			BaseURL:   cfg.Email.BaseURL,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
			Timeout:   cfg.Email.Timeout,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Email notifications disabled")
		} else {
			mail = sg
		}
	}

	if cfg.APNs.CertPath != "" {
		apns, err := notify.NewAPNs(cfg.APNs.CertPath, cfg.APNs.CertPass, cfg.APNs.Topic, cfg.APNs.Production)
		if err != nil {
			log.Warn().Err(err).Msg("Push notifications disabled")
		} else {
			push = apns
		}
	}

	log.Info().
		Bool("email", mail != nil).
		Bool("push", push != nil).
		Msg("Notification channels configured")
	return notify.NewDispatcher(mail, push, cfg.Email.AppURL)
}
