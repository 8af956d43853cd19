// Package main is the entry point for the chat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/bus"
	"github.com/polychat/chat-platform/internal/config"
	"github.com/polychat/chat-platform/internal/dispatch"
	"github.com/polychat/chat-platform/internal/handler"
	"github.com/polychat/chat-platform/internal/identity"
	"github.com/polychat/chat-platform/internal/middleware"
	"github.com/polychat/chat-platform/internal/notify"
	"github.com/polychat/chat-platform/internal/realtime"
	"github.com/polychat/chat-platform/internal/registry"
	"github.com/polychat/chat-platform/internal/store"
	"github.com/polychat/chat-platform/internal/translate"
	"github.com/polychat/chat-platform/pkg/logger"
	"github.com/polychat/chat-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	db, err := store.Open(cfg.DataDir, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// NATS is optional; without it the server runs single-instance with no
	// push offload.
	var busClient *bus.Client
	var relay *bus.Relay
	var purger store.AttachmentPurger
	var pushProvider notify.Provider
	if cfg.NATSURL != "" {
		busClient, err = bus.Connect(ctx, bus.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer busClient.Close()

		if err := busClient.EnsureOffloadStream(ctx); err != nil {
			log.Error("failed to ensure offload stream", zap.Error(err))
			os.Exit(1)
		}
		relay = bus.NewRelay(busClient)
		purger = bus.NewPurger(busClient)
		pushProvider = notify.NewJetStreamProvider(bus.NewPushPublisher(busClient))
	}

	var reg registry.Registry
	if cfg.RedisURL != "" {
		redisReg, err := registry.NewRedis(cfg.RedisURL, cfg.ConnectionTTL)
		if err != nil {
			log.Error("failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		defer redisReg.Close()
		reg = redisReg
	} else {
		log.Warn("REDIS_URL not set, using in-process connection registry")
		reg = registry.NewMemory(cfg.ConnectionTTL)
	}

	var translator translate.Gateway
	providerKind, apiKey := translate.ProviderAnthropic, cfg.AnthropicAPIKey
	if apiKey == "" {
		providerKind, apiKey = translate.ProviderOpenAI, cfg.OpenAIAPIKey
	}
	if apiKey != "" {
		provider, err := translate.NewProvider(providerKind, apiKey)
		if err != nil {
			log.Warn("failed to create translation provider, translation disabled", zap.Error(err))
		} else {
			translator = translate.NewLLMGateway(provider, cfg.TranslationModel, cfg.TranslateTimeout, log)
		}
	} else {
		log.Warn("no translation API key configured, translation disabled")
	}

	var users identity.Resolver
	if cfg.IdentityURL != "" {
		users = identity.NewHTTPResolver(cfg.IdentityURL)
	} else {
		log.Warn("IDENTITY_URL not set, user profiles unavailable")
		users = identity.Static{}
	}

	messages := store.NewMessageStore(db, purger, log)
	directory := store.NewDirectory(db, log)
	hub := realtime.NewHub()
	defer hub.Close()
	fallback := notify.NewFallback(pushProvider, reg, cfg.PushAlwaysNotify, log)

	dispatcher := dispatch.New(messages, directory, reg, hub, translator, users, fallback, relay, log)

	if relay != nil {
		sub, err := relay.Subscribe(dispatcher.HandleRelayed)
		if err != nil {
			log.Error("failed to subscribe to event relay", zap.Error(err))
			os.Exit(1)
		}
		defer sub.Unsubscribe()
	}

	healthHandler := handler.NewHealthHandler(db, busClient)
	conversationHandler := handler.NewConversationHandler(directory, log)
	messageHandler := handler.NewMessageHandler(messages, directory, users, log)
	wsHandler := handler.NewWSHandler(hub, reg, dispatcher, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", conversationHandler.Hide)
				r.Get("/messages", messageHandler.List)
				r.Post("/participants", conversationHandler.AddParticipants)
				r.Delete("/participants/{userId}", conversationHandler.RemoveParticipant)
			})
		})

		r.Get("/ws", wsHandler.Serve)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
