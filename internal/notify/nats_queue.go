package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"support-chat/backend/pkg/logger"

	"github.com/nats-io/nats.go"
)

// NATSConfig addresses the notification subject
type NATSConfig struct {
	URL        string
	Subject    string
	QueueGroup string
	BufferSize int
}

// ConnectNATS dials the server with reconnects enabled
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}

// NATSQueue publishes notifications on a subject and consumes them through a queue group,
// so each notification is delivered by exactly one replica.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	out     chan Notification
	done    chan struct{}
	once    sync.Once
	log     *logger.Logger
}

// NewNATSQueue subscribes to cfg.Subject in cfg.QueueGroup. The caller owns nc.
func NewNATSQueue(nc *nats.Conn, cfg NATSConfig, log *logger.Logger) (*NATSQueue, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	q := &NATSQueue{
		nc:      nc,
		subject: cfg.Subject,
		out:     make(chan Notification, cfg.BufferSize),
		done:    make(chan struct{}),
		log:     log.WithComponent("nats_queue"),
	}
	if nc == nil {
		return q, nil
	}

	sub, err := nc.QueueSubscribe(cfg.Subject, cfg.QueueGroup, q.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	q.sub = sub
	return q, nil
}

func (q *NATSQueue) Publish(_ context.Context, n Notification) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if q.nc == nil {
		return ErrQueueClosed
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	// core publish is buffered by the client and does not wait for the server
	if err := q.nc.Publish(q.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", q.subject, err)
	}
	return nil
}

func (q *NATSQueue) handle(m *nats.Msg) {
	var n Notification
	if err := json.Unmarshal(m.Data, &n); err != nil {
		q.log.Warn("Dropping malformed notification", "subject", m.Subject, "error", err.Error())
		return
	}
	// blocking here makes the subscription buffer pending messages
	select {
	case q.out <- n:
	case <-q.done:
	}
}

func (q *NATSQueue) Messages() <-chan Notification {
	return q.out
}

func (q *NATSQueue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.done)
		if q.sub != nil {
			err = q.sub.Unsubscribe()
		}
	})
	return err
}
