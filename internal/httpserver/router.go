package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/JeffZl/frontenduas/docs"
	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/events"
	"github.com/JeffZl/frontenduas/internal/security"
	"github.com/JeffZl/frontenduas/internal/service"
	"github.com/JeffZl/frontenduas/internal/store"
	"github.com/JeffZl/frontenduas/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(
	cfg *config.Config,
	st *store.Store,
	publisher events.Publisher,
	hub *ws.Hub,
	tokenSvc *security.TokenService,
	log *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	userSvc := service.NewUserService(st.Users)
	convSvc := service.NewConversationService(st.Users, st.Conversations, publisher, log)
	msgSvc := service.NewMessageService(st.Users, st.Conversations, st.Messages, publisher, log, cfg.MaxMessageLength)
	readSvc := service.NewReadService(st.Conversations, st.Messages, publisher, log)

	sendLimiter := NewUserRateLimiter(cfg.SendRatePerMinute, log)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
			"docs":    "/docs",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(tokenSvc, st.Users, cfg.SessionCookieName, log))

		r.Get("/auth/me", handleMe())
		r.Get("/users/{handle}", handleGetUser(userSvc, log))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", handleListConversations(convSvc, log))
			r.Post("/", handleCreateConversation(convSvc, log))
			r.Get("/{conversationID}", handleGetConversation(convSvc, log))
			r.Post("/{conversationID}/read", handleMarkConversationRead(readSvc, log))
			r.Get("/{conversationID}/messages", handleListMessages(msgSvc, log))
			r.With(sendLimiter.Middleware).Post("/{conversationID}/messages", handleCreateMessage(msgSvc, log))
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/read", handleMarkReadByBody(readSvc, log))
			r.Put("/{messageID}/read", handleMarkMessageRead(readSvc, log))
		})
	})

	// WebSocket endpoint; long-lived, so outside the request timeout.
	r.Get("/ws", ws.MakeHandler(hub, tokenSvc, st.Users, readSvc, cfg.SessionCookieName, cfg.CORSOrigins, log))

	return r
}

// RequestLogger logs one line per request with zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
