package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Channel is the Postgres NOTIFY channel signalled when outbox rows commit.
const Channel = "vote_events"

// Listen wakes relay whenever Postgres delivers a notification on Channel.
// Notifications are only delivered once the inserting transaction commits.
// It returns when ctx is done.
func Listen(ctx context.Context, dsn string, relay *Relay, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("outbox listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("listen on %s: %w", Channel, err)
	}
	logger.Info("outbox listener started", zap.String("channel", Channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications may have been missed
			if n == nil {
				logger.Info("outbox listener reconnected")
			}
			relay.Wake()
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					logger.Warn("outbox listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}
