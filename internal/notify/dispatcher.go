package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"support-chat/backend/pkg/logger"
	"support-chat/backend/pkg/resilience"
	"support-chat/backend/shared/observability"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Config controls delivery fan-out and retries
type Config struct {
	Recipients     []int64
	BaseURL        string
	Workers        int
	MaxAttempts    int
	Rate           float64
	SendTimeout    time.Duration
	InitialBackoff time.Duration
}

// Dispatcher fans new-message notifications out to every operator in background workers.
// Request handlers only ever enqueue.
type Dispatcher struct {
	queue   Queue
	channel Channel
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	cfg     Config
	log     *logger.Logger
	metrics *observability.ChatMetrics
	now     func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher. breaker and metrics may be nil.
func NewDispatcher(queue Queue, channel Channel, breaker *resilience.CircuitBreaker, cfg Config, log *logger.Logger, metrics *observability.ChatMetrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultConfig("notification_channel"), log)
	}

	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = max(1, int(cfg.Rate))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:   queue,
		channel: channel,
		breaker: breaker,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		log:     log.WithComponent("dispatcher"),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
}

// NotifyNewMessage enqueues an alert and returns immediately. A full queue drops the alert.
func (d *Dispatcher) NotifyNewMessage(sessionID uint, previewText, attachmentRef string) {
	if len(d.cfg.Recipients) == 0 {
		d.log.Debug("No operator recipients configured; skipping notification", "chat_id", sessionID)
		return
	}

	n := Notification{
		ChatID:     sessionID,
		Preview:    previewText,
		Attachment: attachmentRef,
		CreatedAt:  d.now(),
	}
	if err := d.queue.Publish(d.ctx, n); err != nil {
		d.metrics.Notification(d.ctx, observability.ResultDropped)
		d.log.Warn("Notification dropped", "chat_id", sessionID, "error", err.Error())
	}
}

// Start launches the delivery workers
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.log.Info("Notification dispatcher started", "workers", d.cfg.Workers, "recipients", len(d.cfg.Recipients))
	})
}

// Stop lets workers finish their current notification and waits for them until ctx expires.
// Notifications still queued are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		close(d.stop)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			// abort in-flight sends
			d.cancel()
			<-done
			err = ctx.Err()
		}
		d.cancel()

		if cerr := d.queue.Close(); cerr != nil && err == nil {
			err = cerr
		}
		d.log.Info("Notification dispatcher stopped")
	})
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case n := <-d.queue.Messages():
			d.Deliver(d.ctx, n)
		}
	}
}

// Deliver sends n to every recipient. One recipient failing never affects the others.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) []error {
	text := n.Text()
	link := ChatLink(d.cfg.BaseURL, n.ChatID)

	var errs []error
	for _, recipient := range d.cfg.Recipients {
		if err := d.sendWithRetry(ctx, n.ChatID, recipient, text, link); err != nil {
			errs = append(errs, err)
			d.metrics.Notification(ctx, observability.ResultFailed)
			d.log.LogError(err, "Notification delivery failed", "chat_id", n.ChatID, "recipient", recipient)
			continue
		}
		d.metrics.Notification(ctx, observability.ResultDelivered)
	}
	return errs
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, chatID uint, recipient int64, text, link string) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.cfg.MaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var rejected error
		err := d.breaker.Execute(ctx, func(ctx context.Context) error {
			sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
			defer cancel()
			err := d.channel.Send(sendCtx, recipient, text, link)
			if errors.Is(err, ErrRejected) {
				// the channel answered; only this recipient is bad
				rejected = err
				return nil
			}
			return err
		})
		if rejected != nil {
			return backoff.Permanent(rejected)
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		return &NotificationError{ChatID: chatID, Recipient: recipient, Attempts: attempts, Err: err}
	}
	return nil
}
