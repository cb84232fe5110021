package handlers

import (
	"net/http"
	"slices"

	"together-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router bundles the handlers mounted by NewRouter
type Router struct {
	Tokens         middleware.TokenValidator
	AllowedOrigins []string
	AccessLog      bool
	InternalToken  string

	Users          *UserHandler
	Partners       *PartnerHandler
	Quiz           *QuizHandler
	Messages       *MessageHandler
	Calendar       *CalendarHandler
	DailyQuestions *DailyQuestionHandler
	Agent          *AgentHandler
	Internal       *InternalHandler
	WebSocket      *WebSocketHandler
	Health         *HealthHandler
}

// NewRouter builds the HTTP routes of the API
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if rt.AccessLog {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(rt.AllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", rt.Health.Health)

		r.Post("/auth/register", rt.Users.Register)
		r.Post("/auth/login", rt.Users.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.Tokens))

			r.Route("/auth", func(r chi.Router) {
				r.Get("/profile", rt.Users.GetProfile)
				r.Put("/profile", rt.Users.UpdateProfile)
				r.Post("/profile/avatar", rt.Users.RequestAvatarUpload)
				r.Put("/password", rt.Users.ChangePassword)
				r.Put("/notifications/email", rt.Users.SetEmailNotifications)
				r.Put("/notifications/push", rt.Users.SetPushToken)

				r.Get("/partner/status", rt.Partners.Status)
				r.Post("/partner/invite", rt.Partners.Invite)
				r.Post("/partner/accept", rt.Partners.Accept)
				r.Post("/partner/reject", rt.Partners.Reject)
				r.Post("/partner/cancel", rt.Partners.Cancel)
				r.Delete("/partner", rt.Partners.Disconnect)
			})

			r.Route("/quiz", func(r chi.Router) {
				r.Get("/status", rt.Quiz.Status)
				r.Get("/questions", rt.Quiz.Questions)
				r.Post("/session/start", rt.Quiz.Start)
				r.Get("/session/current", rt.Quiz.Current)
				r.Get("/session/{id}", rt.Quiz.Get)
				r.Post("/session/{id}/answer", rt.Quiz.Answer)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", rt.Messages.List)
				r.Post("/send", rt.Messages.Send)
				r.Get("/conversation/{partnerID}", rt.Messages.Conversation)
				r.Get("/unread-count", rt.Messages.UnreadCount)
				r.Post("/schedule", rt.Messages.Schedule)
				r.Get("/scheduled", rt.Messages.ListScheduled)
				r.Put("/scheduled/{id}", rt.Messages.UpdateScheduled)
				r.Post("/scheduled/{id}/cancel", rt.Messages.CancelScheduled)
			})

			r.Get("/calendar/events", rt.Calendar.List)
			r.Post("/calendar/events", rt.Calendar.Create)
			r.Delete("/calendar/events/{id}", rt.Calendar.Delete)

			r.Get("/daily-question", rt.DailyQuestions.Today)
			r.Post("/daily-question/answer", rt.DailyQuestions.Answer)
			r.Get("/daily-question/answers", rt.DailyQuestions.History)

			r.Post("/agent/analyze", rt.Agent.Analyze)
			r.Get("/agent/suggestions", rt.Agent.Suggestions)
			r.Get("/agent/style-profile", rt.Agent.StyleProfile)
			r.Get("/agent/activity", rt.Agent.Activity)
			r.Get("/agent/actions", rt.Agent.Actions)
			r.Get("/agent/queue", rt.Agent.Queue)
			r.Post("/agent/actions/{id}/execute", rt.Agent.Execute)
			r.Post("/agent/actions/{id}/feedback", rt.Agent.Feedback)
		})

		if rt.Internal != nil {
			r.Route("/internal", func(r chi.Router) {
				r.Use(middleware.InternalToken(rt.InternalToken))
				r.Get("/activity-feed", rt.Internal.ActivityFeed)
				r.Post("/activity-feed/ack", rt.Internal.AcknowledgeFeed)
				r.Post("/decisions/run", rt.Internal.RunDecisions)
			})
		}
	})

	if rt.WebSocket != nil {
		r.Get("/ws", rt.WebSocket.HandleWebSocket)
	}
	return r
}

// corsMiddleware answers preflight requests and allows the configured
// origins. "*" allows any origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowed, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
