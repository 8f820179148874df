package notify

import (
	"context"

	"support-chat/backend/pkg/logger"
)

// Channel sends a rendered notification to one operator
type Channel interface {
	Send(ctx context.Context, recipient int64, text, link string) error
}

// LogChannel writes notifications to the log. Used when no bot token is configured.
type LogChannel struct {
	log *logger.Logger
}

func NewLogChannel(log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &LogChannel{log: log.WithComponent("notify")}
}

func (c *LogChannel) Send(ctx context.Context, recipient int64, text, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("Operator notification", "recipient", recipient, "text", text, "link", link)
	return nil
}
