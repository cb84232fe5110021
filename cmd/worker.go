package cmd

import (
	"together-backend/internal/agent"
	"together-backend/internal/repository"
	"together-backend/internal/services"
	"together-backend/internal/worker"

	"github.com/spf13/cobra"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver scheduled messages and run the agent decision pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openDB(ctx, false)
		if err != nil {
			return err
		}
		defer db.Close()

		userRepo := repository.NewUserRepository(db)
		messageRepo := repository.NewMessageRepository(db)
		calendarRepo := repository.NewCalendarRepository(db)
		agentRepo := repository.NewAgentRepository(db)
		activityRepo := repository.NewActivityRepository(db)

		activity := services.NewActivityService(activityRepo)
		messages := services.NewMessageService(messageRepo, userRepo, agentRepo, buildNotifier(), nil)
		messages.SetActivity(activity)
		calendar := services.NewCalendarService(calendarRepo, userRepo)
		calendar.SetActivity(activity)

		// Planning runs on the heuristic context only.
		advisor := services.NewAgentService(
			agent.NewAnalyzer(nil),
			agentRepo,
			userRepo,
			messageRepo,
			calendarRepo,
			repository.NewDailyQuestionRepository(db),
			nil,
			services.AgentTTLs{
				Tone:       cfg.Agent.ToneCacheTTL,
				Suggestion: cfg.Agent.SuggestionCacheTTL,
				Style:      cfg.Agent.StyleCacheTTL,
			},
		)
		actions := services.NewActionService(activityRepo, activityRepo, advisor, messages, calendar)

		w := worker.New(messages, cfg.Worker.Interval, cfg.Worker.BatchSize).
			WithAgent(actions, activity, cfg.Agent.DecisionBatchSize, cfg.Agent.ActivityRetention)
		if workerOnce {
			_, err := w.RunOnce(ctx)
			return err
		}
		w.Run(ctx)
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Run a single delivery pass and exit")
}
