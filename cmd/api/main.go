// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiptrack-api-server/config"
	"shiptrack-api-server/internal/api/handlers"
	"shiptrack-api-server/internal/api/routes"
	"shiptrack-api-server/internal/auth"
	"shiptrack-api-server/internal/blockchain"
	"shiptrack-api-server/internal/database"
	"shiptrack-api-server/internal/geocode"
	"shiptrack-api-server/internal/issue"
	"shiptrack-api-server/internal/logger"
	"shiptrack-api-server/internal/messaging"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/notification"
	"shiptrack-api-server/internal/profile"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/s3"
	"shiptrack-api-server/internal/shipment"
	"shiptrack-api-server/internal/socket"
	"shiptrack-api-server/internal/storage/memory"
	mongostore "shiptrack-api-server/internal/storage/mongo"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
	zlog.Info("server stopped")
}

type shipmentStore interface {
	shipment.Repository
	database.ShipmentStore
}

type stores struct {
	shipments     shipmentStore
	notifications notification.Repository
	messages      messaging.Repository
	issues        issue.Repository
	profiles      profile.Repository
	proofs        shipment.ProofStore
	close         func(context.Context) error
}

func openStores(ctx context.Context, cfg config.Config, zlog *zap.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		zlog.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			shipments:     memory.NewShipmentRepo(),
			notifications: memory.NewNotificationRepo(),
			messages:      memory.NewMessageRepo(),
			issues:        memory.NewIssueRepo(),
			profiles:      memory.NewProfileRepo(),
			proofs:        memory.NewProofRepo(),
			close:         func(context.Context) error { return nil },
		}, nil
	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.DBName)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
		zlog.Info("connected to MongoDB", zap.String("db", cfg.Mongo.DBName))
		return &stores{
			shipments:     mongostore.NewShipmentRepo(db),
			notifications: mongostore.NewNotificationRepo(db),
			messages:      mongostore.NewMessageRepo(db),
			issues:        mongostore.NewIssueRepo(db),
			profiles:      mongostore.NewProfileRepo(db),
			proofs:        mongostore.NewProofRepo(db),
			close:         client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func run(ctx context.Context, cfg config.Config, zlog *zap.Logger) error {
	// 2. Storage
	st, err := openStores(ctx, cfg, zlog)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			zlog.Warn("closing storage", zap.Error(err))
		}
	}()

	if cfg.Storage.Seed {
		if err := database.Seed(ctx, st.profiles, st.shipments, zlog); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	// 3. Realtime bus and its transports
	bus := realtime.NewBus(zlog)

	var (
		redisClient *redis.Client
		bridge      *realtime.RedisBridge
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		bridge = realtime.NewRedisBridge(redisClient, cfg.Redis.Channel, bus, zlog)
		bus.AddForwarder(bridge)
	}

	if cfg.Kafka.Enabled {
		sink := realtime.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog)
		defer sink.Close()
		bus.AddForwarder(sink)
		zlog.Info("kafka event sink enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	// 4. Services
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.Issuer)
	dispatcher := notification.NewDispatcher(st.notifications, st.profiles, bus, zlog)
	if cfg.SNS.Enabled {
		sender, err := notification.NewSNSSender(ctx, cfg.SNS.Region, cfg.SNS.SenderID)
		if err != nil {
			return fmt.Errorf("init sns: %w", err)
		}
		dispatcher.UseSMS(sender)
	}

	opts := []shipment.Option{
		shipment.WithNotifier(dispatcher),
		shipment.WithPublisher(bus),
		shipment.WithProfiles(st.profiles),
		shipment.WithProofs(st.proofs),
		shipment.WithRetryPolicy(shipment.RetryPolicy{
			MaxAttempts:        cfg.Retry.MaxAttempts,
			InitialInterval:    cfg.Retry.InitialInterval,
			BackoffCoefficient: cfg.Retry.BackoffCoefficient,
			MaxInterval:        cfg.Retry.MaxInterval,
		}),
	}
	if redisClient != nil {
		opts = append(opts, shipment.WithIdempotency(shipment.NewRedisIdempotency(redisClient, cfg.Retry.IdempotencyTTL)))
	} else {
		opts = append(opts, shipment.WithIdempotency(shipment.NewMemoryIdempotency(cfg.Retry.IdempotencyTTL)))
	}
	if cfg.Fabric.Enabled {
		fabricSetup, err := blockchain.Initialize(cfg.Fabric)
		if err != nil {
			return fmt.Errorf("init fabric: %w", err)
		}
		defer fabricSetup.Close()
		opts = append(opts, shipment.WithAnchor(blockchain.NewHistoryAnchor(fabricSetup.Contract, zlog)))
		zlog.Info("history anchoring enabled", zap.String("channel", cfg.Fabric.ChannelName))
	}
	shipments := shipment.NewService(st.shipments, zlog, opts...)
	profiles := profile.NewService(st.profiles, tokens, zlog)

	var uploader handlers.Uploader
	if cfg.S3.Enabled {
		u, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("init s3: %w", err)
		}
		uploader = u
	}

	var geoCache geocode.Cache
	if redisClient != nil {
		geoCache = geocode.NewRedisCache(redisClient, cfg.Geocode.CacheTTL, zlog)
	}
	geocoder := geocode.New(cfg.Geocode.Endpoint, cfg.Geocode.UserAgent, cfg.Geocode.Timeout, geoCache, zlog)

	// Server-side replica: logs every status change that reaches this
	// instance, including those relayed from other instances.
	replica := realtime.NewReplica(realtime.ListerFunc(func(ctx context.Context) ([]models.Shipment, error) {
		return st.shipments.List(ctx, shipment.Filter{})
	}), func(c realtime.StatusChange) {
		zlog.Debug("shipment status observed", zap.String("change", c.String()))
	}, zlog)
	if err := replica.Refresh(ctx); err != nil {
		zlog.Warn("initial replica load failed", zap.Error(err))
	}
	defer replica.Attach(bus).Unsubscribe()

	hub := socket.NewHub(bus, shipments, zlog)

	// 5. Router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(routes.Dependencies{
		Tokens: tokens,
		Shipments: &handlers.ShipmentHandler{
			Shipments: shipments, Profiles: profiles, Uploader: uploader,
			MaxUploadBytes: cfg.S3.MaxUploadBytes, Log: zlog,
		},
		Notifications: &handlers.NotificationHandler{Notifications: dispatcher},
		Messages:      &handlers.MessageHandler{Messages: messaging.NewChannel(st.messages, st.shipments, bus, dispatcher, zlog)},
		Issues:        &handlers.IssueHandler{Issues: issue.NewService(st.issues, st.shipments, dispatcher, zlog)},
		Profiles: &handlers.ProfileHandler{
			Profiles: profiles, Uploader: uploader, MaxUploadBytes: cfg.S3.MaxUploadBytes, Log: zlog,
		},
		Geocode:        &handlers.GeocodeHandler{Geocoder: geocoder},
		WebSocket:      &handlers.WebSocketHandler{Hub: hub, AllowedOrigins: cfg.Server.AllowedOrigins, Log: zlog},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            zlog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Start server and background loops
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("Starting API server", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		hub.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
