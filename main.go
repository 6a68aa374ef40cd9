package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"trade-market/internal/attachments"
	"trade-market/internal/auth"
	"trade-market/internal/config"
	"trade-market/internal/db"
	grpcserver "trade-market/internal/grpc"
	"trade-market/internal/handlers"
	"trade-market/internal/middleware"
	"trade-market/internal/observability"
	"trade-market/internal/rabbitmq"
	"trade-market/internal/render"
	"trade-market/internal/repositories"
	"trade-market/internal/search"
	"trade-market/internal/services"
	"trade-market/internal/telemetry"
	"trade-market/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trade-market: %v\n", err)
		os.Exit(1)
	}
}

// storage bundles the repositories of the configured driver.
type storage struct {
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	trades        repositories.TradeRepository
	ping          func(ctx context.Context) error
	close         func() error
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (storage, error) {
	if cfg.DBDriver == config.DriverBadger {
		bdb, err := db.OpenBadger(cfg.BadgerPath, log)
		if err != nil {
			return storage{}, err
		}
		store, err := repositories.NewBadgerStore(bdb)
		if err != nil {
			_ = bdb.Close()
			return storage{}, err
		}
		return storage{
			users:         store,
			conversations: store,
			messages:      store,
			trades:        store,
			ping: func(context.Context) error {
				if bdb.IsClosed() {
					return badger.ErrDBClosed
				}
				return nil
			},
			close: func() error {
				return errors.Join(store.Close(), bdb.Close())
			},
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		return storage{}, err
	}
	return storage{
		users:         repositories.NewUserRepo(database),
		conversations: repositories.NewConversationRepo(database),
		messages:      repositories.NewMessageRepo(database),
		trades:        repositories.NewTradeRepo(database),
		ping:          database.PingContext,
		close:         database.Close,
	}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage", "driver", cfg.DBDriver)
		_ = store.close()
	}()

	blobs, err := attachments.NewDiskStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	index, err := search.OpenTradeIndex(cfg.SearchIndexPath)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer func() { _ = publisher.Close() }()
	log.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, log)

	markdown := render.NewMarkdown()
	users := services.NewUserDirectory(store.users, cfg.AvatarSize)
	registry := services.NewConversationRegistry(store.conversations, users, publisher, log)
	feed := services.NewMessageFeed(store.conversations, store.messages, users, markdown, publisher, cfg.HistoryWindow, log)
	trades := services.NewTradeService(store.trades, users, blobs, index, markdown, publisher, audit, cfg.MaxImagesPerTrade, log)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := ws.NewHub(publisher, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.Use(
		gin.Recovery(),
		observability.HTTPMetricsMiddleware(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.Timeout(cfg.RequestTimeout),
	)

	handlers.RegisterHealthRoutes(router, map[string]handlers.HealthCheck{"storage": store.ping})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	router.GET("/ws/conversations/:conversation_id", ws.NewConversationWebSocketHandler(hub, registry, verifier, log).Handle)

	api := router.Group("/", middleware.AuthMiddleware(verifier, users, log))
	handlers.NewConversationHandler(registry, feed, hub, log).Register(api)
	handlers.NewTradeHandler(trades, log).Register(api)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           cors.Handler(corsOptions(cfg.CORSOrigin))(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", cfg.GRPCPort, err)
	}
	health := grpcserver.NewHealthServer(log)

	errChan := make(chan error, 2)
	go func() {
		if err := health.Serve(grpcListener); err != nil {
			errChan <- fmt.Errorf("grpc server error: %w", err)
		}
	}()
	go func() {
		log.Info("http server listening", "addr", httpServer.Addr, "driver", cfg.DBDriver, "history_window", feed.Window())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()
	health.SetServing(true)
	go health.Monitor(ctx, 15*time.Second, store.ping)

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errChan:
		health.Stop()
		return err
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	health.Stop()
	log.Info("service stopped")
	return nil
}

func corsOptions(corsOrigin string) cors.Options {
	var origins []string
	for _, p := range strings.Split(corsOrigin, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Device-Id"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
