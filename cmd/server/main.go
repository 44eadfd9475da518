package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/apartment-hub/internal/adapter/broker"
	"github.com/rl1809/apartment-hub/internal/adapter/handler"
	"github.com/rl1809/apartment-hub/internal/adapter/payment"
	"github.com/rl1809/apartment-hub/internal/adapter/storage"
	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/config"
	"github.com/rl1809/apartment-hub/internal/core/service"
	"github.com/rl1809/apartment-hub/internal/obs"
	"github.com/rl1809/apartment-hub/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := obs.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var store port.Store
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			return err
		}
		log.Info("connected to mysql")

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if cfg.Storage.Migrate {
			if err := mysqlAdapter.Migrate(ctx); err != nil {
				return err
			}
		}
		store = mysqlAdapter
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		store = storage.NewMemoryStore()
	}

	// Order lock
	var lock port.OrderLock
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		log.Info("connected to redis", "addr", cfg.Redis.Addr)
		lock = storage.NewRedisLock(rdb)
	} else {
		lock = storage.NewMemoryLock()
	}

	// Events
	var events port.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err := broker.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		log.Info("connected to rabbitmq", "exchange", cfg.RabbitMQ.Exchange)
		events = publisher
	} else {
		events = broker.NewLogPublisher(log)
	}

	var verifier port.PaymentVerifier
	if cfg.Payment.Secret != "" {
		verifier = payment.NewHMACVerifier(cfg.Payment.Secret)
	}

	// Services
	catalog := service.NewCatalogService(store, log)
	carts := service.NewCartService(store, log)
	orders := service.NewOrderService(store, lock, events, log, cfg.Orders.LockTTL)
	bills := service.NewBillService(store, verifier, events, log)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret)

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orders, carts, tokens))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewHTTPHandler(catalog, carts, orders, bills, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, tokens, log, cfg.CORS.AllowOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown error", "error", err)
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	log.Info("connections closed")
	return nil
}
