package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const channelPrefix = "realtime:"

// PgListener holds one LISTEN connection and forwards notifications to a Broker.
type PgListener struct {
	pool   *pgxpool.Pool
	broker *Broker
	logger *zap.Logger
	retry  time.Duration
}

func NewPgListener(pool *pgxpool.Pool, broker *Broker, logger *zap.Logger) *PgListener {
	return &PgListener{
		pool:   pool,
		broker: broker,
		logger: logger,
		retry:  2 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after connection errors.
func (l *PgListener) Run(ctx context.Context) error {
	l.logger.Info("Starting realtime listener", zap.Strings("tables", Tables))
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Realtime listener stopped")
			return nil
		}
		l.logger.Error("realtime listener error", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *PgListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		// соединение могло остаться в LISTEN, не возвращаем его в пул в таком виде
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	for _, table := range Tables {
		channel := pgx.Identifier{channelPrefix + table}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("listen %s: %w", table, err)
		}
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		evt, err := ParsePayload(n.Payload)
		if err != nil {
			l.logger.Warn("skipping malformed notification",
				zap.String("channel", n.Channel),
				zap.Error(err),
			)
			continue
		}
		l.broker.Publish(evt)
	}
}

// ParsePayload decodes the JSON body produced by the notify_table_change trigger.
func ParsePayload(payload string) (ChangeEvent, error) {
	var evt ChangeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return evt, err
	}
	if evt.Table == "" {
		return evt, errors.New("missing table")
	}
	return evt, nil
}
