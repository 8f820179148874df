package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"support-chat/backend/internal/notify"
	"support-chat/backend/internal/repository"
	"support-chat/backend/internal/service"
	"support-chat/backend/pkg/cache"
	"support-chat/backend/pkg/config"
	"support-chat/backend/pkg/health"
	"support-chat/backend/pkg/logger"
	"support-chat/backend/pkg/resilience"
	"support-chat/backend/pkg/secrets"
	"support-chat/backend/shared/observability"
	"support-chat/backend/shared/redis"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

// UploadURLPrefix is the path stored attachments are served under
const UploadURLPrefix = "/uploads"

// EphemeralBackend is the typing and presence store together with its lifecycle
type EphemeralBackend interface {
	service.EphemeralStore
	Ping(ctx context.Context) error
	Close() error
}

// Container holds all the dependencies for the application
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Logger      *logger.Logger
	Metrics     *observability.ChatMetrics
	Repository  *repository.GormChatRepository
	Ephemeral   EphemeralBackend
	Sessions    *service.SessionManager
	Presence    *service.PresenceTracker
	Typing      *service.TypingTracker
	Coordinator *service.Coordinator
	Queue       notify.Queue
	Dispatcher  *notify.Dispatcher
	Telegram    *notify.TelegramChannel
	Reaper      *service.Reaper
	Health      *health.Checker
	Attachments *service.LocalAttachmentStore

	nc *nats.Conn
	wg sync.WaitGroup
}

// New wires every component from cfg. The caller owns db.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Container{Config: cfg, DB: db, Logger: log}

	metrics, err := observability.NewChatMetrics(otel.Meter("support-chat/backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	c.Metrics = metrics

	c.Repository = repository.NewGormChatRepository(db)
	c.Ephemeral = newEphemeralBackend(ctx, cfg, log)

	c.Sessions = service.NewSessionManager(c.Repository, cfg.Chat.AllowEmptyMessages, nil)
	c.Presence = service.NewPresenceTracker(c.Ephemeral, service.PresenceConfig{
		TTL:       cfg.Chat.PresenceTTL,
		Freshness: cfg.Chat.PresenceFreshness,
		Mode:      cfg.Chat.PresenceMode,
	}, nil)
	c.Typing = service.NewTypingTracker(c.Ephemeral, cfg.Chat.TypingTTL, cfg.Chat.TypingScope)

	if err := c.setupNotifications(ctx); err != nil {
		c.closeEphemeral()
		return nil, err
	}

	c.Coordinator = service.NewCoordinator(c.Sessions, c.Presence, c.Typing, c.Dispatcher,
		service.WithLogger(log),
		service.WithMetrics(metrics),
	)

	c.Reaper = service.NewReaper(c.Repository, service.ReaperConfig{
		Interval:   cfg.Chat.ReaperInterval,
		Window:     cfg.InactivityWindow(),
		RunOnStart: cfg.Chat.ReaperRunOnStart,
	}, nil, log, metrics)

	c.Attachments, err = service.NewLocalAttachmentStore(cfg.Uploads.Dir, UploadURLPrefix, cfg.Uploads.MaxSize)
	if err != nil {
		c.closeNotifications()
		c.closeEphemeral()
		return nil, err
	}

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(c.Repository.Ping)
	c.Health.RegisterEphemeralStoreCheck(c.Ephemeral.Ping)

	return c, nil
}

func newEphemeralBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) EphemeralBackend {
	if cfg.Redis.URL == "" {
		log.Info("Using in-process ephemeral store")
		return cache.New()
	}

	client, err := redis.NewRedisClient(ctx, redis.Config{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-process ephemeral store", "error", err.Error())
		return cache.New()
	}
	log.Info("Connected to Redis")
	return client
}

func (c *Container) setupNotifications(ctx context.Context) error {
	cfg := c.Config
	log := c.Logger

	var channel notify.Channel
	token := secrets.GetSecretWithDefault(ctx, "telegram_bot_token", cfg.Notify.BotToken)
	if token == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, operator alerts are only logged")
		channel = notify.NewLogChannel(log)
	} else {
		tg, err := notify.NewTelegramChannel(notify.TelegramConfig{
			Token:      token,
			Timeout:    cfg.Notify.SendTimeout,
			Recipients: cfg.Notify.OperatorChats,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create telegram channel: %w", err)
		}
		c.Telegram = tg
		channel = tg
	}

	switch cfg.Notify.Queue {
	case "nats":
		nc, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Observability.ServiceName)
		if err != nil {
			return err
		}
		q, err := notify.NewNATSQueue(nc, notify.NATSConfig{
			URL:        cfg.Notify.NATSURL,
			Subject:    cfg.Notify.NATSSubject,
			QueueGroup: cfg.Notify.NATSQueueGroup,
			BufferSize: cfg.Notify.QueueSize,
		}, log)
		if err != nil {
			nc.Close()
			return err
		}
		c.nc = nc
		c.Queue = q
	default:
		c.Queue = notify.NewMemoryQueue(cfg.Notify.QueueSize)
	}

	breaker := resilience.NewCircuitBreaker(resilience.DefaultConfig("telegram"), log)
	c.Dispatcher = notify.NewDispatcher(c.Queue, channel, breaker, notify.Config{
		Recipients:  cfg.Notify.OperatorChats,
		BaseURL:     cfg.Server.BaseURL,
		Workers:     cfg.Notify.Workers,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Rate:        cfg.Notify.Rate,
		SendTimeout: cfg.Notify.SendTimeout,
	}, log, c.Metrics)

	if len(cfg.Notify.OperatorChats) == 0 {
		log.Warn("OPERATOR_CHAT_IDS is empty, new message alerts are disabled")
	}
	return nil
}

// Start launches the background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	c.Dispatcher.Start()
	c.Health.Start(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Reaper.Run(ctx)
	}()

	if c.Telegram != nil && c.Config.Notify.Listener {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Telegram.Listen(ctx)
		}()
	}
}

// Close stops the dispatcher and releases connections. Cancel the Start context first.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.Dispatcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := c.closeNotifications(); err != nil {
		errs = append(errs, err)
	}
	if err := c.closeEphemeral(); err != nil {
		errs = append(errs, fmt.Errorf("close ephemeral store: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Container) closeNotifications() error {
	var err error
	if c.Queue != nil {
		err = c.Queue.Close()
	}
	if c.nc != nil {
		c.nc.Close()
	}
	return err
}

func (c *Container) closeEphemeral() error {
	if c.Ephemeral == nil {
		return nil
	}
	return c.Ephemeral.Close()
}
