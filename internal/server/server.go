package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/orstracker/apiserver/config"
	"github.com/orstracker/apiserver/internal/db"
	"github.com/orstracker/apiserver/internal/handlers"
	"github.com/orstracker/apiserver/internal/mail"
	"github.com/orstracker/apiserver/internal/mq"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/internal/storage"
	"github.com/orstracker/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	database   *mongo.Database
	broker     *mq.MQ
	log        *zap.SugaredLogger
}

// New constructs a Server with all collaborators wired from config.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	sugar := logger.Sugar()

	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}

	accessSecret := strings.TrimSpace(cfg.JWT.AccessSecret)
	refreshSecret := strings.TrimSpace(cfg.JWT.RefreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		_ = db.Close(context.Background(), database)
		return nil, errors.New("JWT_SECRET and REFRESH_TOKEN_SECRET are required")
	}

	objectStore, err := newObjectStorage(ctx, cfg.Storage)
	if err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}

	mailer, err := mail.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}

	broker, err := newBroker(ctx, cfg.MQ)
	if err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}
	var events *mq.ReportEvents
	if broker != nil {
		events = mq.NewReportEvents(broker)
	}

	userRepo := store.NewUserRepository(database, db.UsersCollection)
	reportRepo := store.NewReportRepository(database, db.ReportsCollection)

	userService := services.NewUserService(userRepo)
	uploader := storage.NewUploader(objectStore)
	reportService := services.NewReportService(reportRepo, uploader, events, sugar)

	authHandler := handlers.NewAuthHandler(userService, mailer, accessSecret, refreshSecret, cfg.FrontendURL, sugar)
	userHandler := handlers.NewUserHandler(userService)
	reportHandler := handlers.NewReportHandler(reportService, sugar)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}),
	)
	router.Get("/healthz", handlers.Healthz(database))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/user", func(r chi.Router) {
		handlers.UserRouter(r, userHandler)
	})
	handlers.ReportRouter(router, reportHandler, authHandler.OptionalAuth)

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		database:   database,
		broker:     broker,
		log:        sugar,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	if s.log != nil {
		s.log.Infow("server listening", "addr", s.httpServer.Addr)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.database != nil {
		_ = db.Close(context.Background(), s.database)
	}
	return s.httpServer.Close()
}

func newObjectStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	switch cfg.Backend {
	case "minio", "":
		backend, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	case "gcs":
		backend, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newBroker(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
