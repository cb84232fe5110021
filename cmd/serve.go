package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"together-backend/internal/agent"
	"together-backend/internal/cache"
	"together-backend/internal/handlers"
	"together-backend/internal/repository"
	"together-backend/internal/services"
	"together-backend/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveMigrate    bool
	serveWithWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the database schema before serving")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "Also deliver scheduled messages in this process")
}

func runServer() error {
	ctx, stop := signalContext()
	defer stop()

	db, err := openDB(ctx, serveMigrate)
	if err != nil {
		return err
	}
	defer db.Close()

	bank, err := services.LoadQuizBank()
	if err != nil {
		return err
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	questionRepo := repository.NewDailyQuestionRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	// Initialize services
	wsHub := services.NewWSHub(userRepo)
	defer wsHub.Close()

	notifier := buildNotifier()
	partnerService := services.NewPartnerService(userRepo, partnerRepo, notifier, wsHub)
	userService := services.NewUserService(userRepo, partnerRepo, partnerService, cfg.JWT.Secret, cfg.JWT.TTL)
	quizService := services.NewQuizService(quizRepo, userRepo, bank, wsHub)
	messageService := services.NewMessageService(messageRepo, userRepo, agentRepo, notifier, wsHub)
	calendarService := services.NewCalendarService(calendarRepo, userRepo)
	questionService := services.NewDailyQuestionService(questionRepo, userRepo)

	activityService := services.NewActivityService(activityRepo)
	partnerService.SetActivity(activityService)
	quizService.SetActivity(activityService)
	messageService.SetActivity(activityService)
	calendarService.SetActivity(activityService)

	var avatarService *services.AvatarService
	if cfg.AWS.S3Bucket != "" {
		avatarService, err = services.NewAvatarService(ctx, userRepo, cfg.AWS)
		if err != nil {
			return err
		}
	}

	var resultCache services.Cache
	if cfg.Redis.Addr != "" {
		rc, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, agent results will not be cached")
		} else {
			defer rc.Close()
			resultCache = rc
		}
	}

	agentService := services.NewAgentService(
		agent.NewAnalyzer(buildModel(ctx)),
		agentRepo,
		userRepo,
		messageRepo,
		calendarRepo,
		questionRepo,
		resultCache,
		services.AgentTTLs{
			Tone:       cfg.Agent.ToneCacheTTL,
			Suggestion: cfg.Agent.SuggestionCacheTTL,
			Style:      cfg.Agent.StyleCacheTTL,
		},
	)
	actionService := services.NewActionService(activityRepo, activityRepo, agentService, messageService, calendarService)

	router := handlers.NewRouter(handlers.Router{
		Tokens:         userService,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AccessLog:      true,
		InternalToken:  cfg.Internal.Token,
		Users:          handlers.NewUserHandler(userService, avatarService),
		Partners:       handlers.NewPartnerHandler(partnerService),
		Quiz:           handlers.NewQuizHandler(quizService),
		Messages:       handlers.NewMessageHandler(messageService),
		Calendar:       handlers.NewCalendarHandler(calendarService),
		DailyQuestions: handlers.NewDailyQuestionHandler(questionService),
		Agent:          handlers.NewAgentHandler(agentService, actionService, activityService),
		Internal:       handlers.NewInternalHandler(activityService, actionService, cfg.Agent.DecisionBatchSize),
		WebSocket:      handlers.NewWebSocketHandler(wsHub, userService, partnerService),
		Health:         handlers.NewHealthHandler(db, wsHub),
	})

	if serveWithWorker {
		go worker.New(messageService, cfg.Worker.Interval, cfg.Worker.BatchSize).
			WithAgent(actionService, activityService, cfg.Agent.DecisionBatchSize, cfg.Agent.ActivityRetention).
			Run(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown.
	wsHub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

// buildModel returns the language model behind a failure cooldown, or nil
// when the agent runs on heuristics only
func buildModel(ctx context.Context) agent.Model {
	if !cfg.Agent.AgentAvailable() {
		log.Info().Msg("Agent model disabled, using heuristics")
		return nil
	}
	model, err := agent.NewGenAIModel(ctx, cfg.Agent.APIKey, cfg.Agent.Model, cfg.Agent.Timeout)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create agent model, using heuristics")
		return nil
	}
	log.Info().Str("model", cfg.Agent.Model).Dur("cooldown", cfg.Agent.Cooldown).Msg("Agent model enabled")
	return agent.NewCooldown(model, cfg.Agent.Cooldown)
}
