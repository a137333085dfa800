package jobs

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anjiri1684/tutor_marketplace/events"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type outboxSource interface {
	Outbox() services.OutboxRepository
}

type RelayConfig struct {
	BatchSize  int
	MaxRetries int
	// Parallelism bounds how many message keys publish at once.
	Parallelism int
}

// OutboxRelay publishes pending outbox messages. Messages sharing a key are
// published in order; a failure holds back the rest of that key until the
// next run.
type OutboxRelay struct {
	store     outboxSource
	publisher events.Publisher
	cfg       RelayConfig
	now       services.Clock
	logger    *zap.Logger
}

func NewOutboxRelay(store outboxSource, publisher events.Publisher, cfg RelayConfig, now services.Clock, logger *zap.Logger) *OutboxRelay {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &OutboxRelay{store: store, publisher: publisher, cfg: cfg, now: now, logger: logger.Named("outbox")}
}

// Run relays one batch and returns how many messages were published.
func (r *OutboxRelay) Run(ctx context.Context) (int, error) {
	pending, err := r.store.Outbox().ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var keys []string
	groups := make(map[string][]models.OutboxMessage)
	for _, m := range pending {
		if _, ok := groups[m.MessageKey]; !ok {
			keys = append(keys, m.MessageKey)
		}
		groups[m.MessageKey] = append(groups[m.MessageKey], m)
	}

	sent := make([]int, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, key := range keys {
		i, msgs := i, groups[key]
		g.Go(func() error {
			sent[i] = r.relayGroup(gctx, msgs)
			return gctx.Err()
		})
	}
	err = g.Wait()

	total := 0
	for _, n := range sent {
		total += n
	}
	return total, err
}

func (r *OutboxRelay) relayGroup(ctx context.Context, msgs []models.OutboxMessage) int {
	sent := 0
	for _, m := range msgs {
		log := r.logger.With(zap.String("message_id", m.ID.String()), zap.String("topic", m.Topic))
		if err := r.publisher.Publish(ctx, m); err != nil {
			giveUp := m.RetryCount+1 >= r.cfg.MaxRetries
			if giveUp {
				log.Error("giving up on message", zap.Int("attempts", m.RetryCount+1), zap.Error(err))
			} else {
				log.Warn("publish failed", zap.Error(err))
			}
			if err := r.store.Outbox().RecordFailure(ctx, m.ID, giveUp, r.now()); err != nil {
				log.Error("recording failure", zap.Error(err))
			}
			if !giveUp {
				return sent
			}
			continue
		}
		if err := r.store.Outbox().MarkSent(ctx, m.ID, r.now()); err != nil {
			log.Error("marking message sent", zap.Error(err))
			return sent
		}
		sent++
	}
	return sent
}
