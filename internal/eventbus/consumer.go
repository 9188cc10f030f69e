package eventbus

import (
	"context"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// RecordHandler processes one decoded user.verified record. Handlers are
// dispatched in parallel within a batch and MUST be idempotent.
type RecordHandler func(ctx context.Context, record UserVerifiedEvent) error

// ConsumerConfig mirrors the tunables named in the external-interfaces
// section: batch size, poll timeout, and the fixed group/topic identity.
type ConsumerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	BatchProcessingSize int
	PollTimeout         time.Duration
}

// Consumer polls up to BatchProcessingSize records, dispatches them to a
// RecordHandler in parallel, and commits offsets only if every record in
// the batch succeeded — otherwise the whole batch is redelivered next
// poll, relying on the handler's own idempotency guard.
type Consumer struct {
	reader *kafka.Reader
	cfg    ConsumerConfig
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        cfg.PollTimeout,
		CommitInterval: 0, // manual commit
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: reader, cfg: cfg}
}

// Run blocks, polling and dispatching batches until ctx is cancelled.
// Shutdown flips to a clean return once the in-flight batch's tasks have
// been cancelled and the reader is closed; uncommitted records will be
// redelivered to the next consumer that picks up the group.
func (c *Consumer) Run(ctx context.Context, handle RecordHandler) error {
	defer c.reader.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("poll failed")
			continue
		}
		if len(batch) == 0 {
			continue
		}

		if err := c.dispatch(ctx, batch, handle); err != nil {
			log.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch had failures, not committing")
			continue
		}

		if err := c.commitWithRetry(ctx, batch); err != nil {
			log.Error().Err(err).Msg("failed to commit offsets after retries")
		}
	}
}

// poll collects up to BatchProcessingSize records within one PollTimeout
// window, matching the "poll up to N records with a timeout" contract
// rather than kafka-go's one-message-at-a-time FetchMessage default.
func (c *Consumer) poll(ctx context.Context) ([]kafka.Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	batch := make([]kafka.Message, 0, c.cfg.BatchProcessingSize)
	for len(batch) < c.cfg.BatchProcessingSize {
		msg, err := c.reader.FetchMessage(pollCtx)
		if err != nil {
			if len(batch) > 0 {
				return batch, nil
			}
			if pollCtx.Err() != nil {
				return batch, nil
			}
			return nil, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// dispatch runs handle over every record concurrently and waits for all of
// them; every task runs to completion regardless of a sibling's failure, and
// the first error observed (if any) is what decides whether the batch
// commits.
func (c *Consumer) dispatch(ctx context.Context, batch []kafka.Message, handle RecordHandler) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, msg := range batch {
		msg := msg
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.dispatchOne(ctx, msg, handle)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (c *Consumer) dispatchOne(ctx context.Context, msg kafka.Message, handle RecordHandler) error {
	event, err := DecodeUserVerified(msg.Value)
	if err != nil {
		metrics.EventsConsumedTotal.WithLabelValues(c.cfg.Topic, "decode_error").Inc()
		return err
	}
	if err := handle(ctx, event); err != nil {
		metrics.EventsConsumedTotal.WithLabelValues(c.cfg.Topic, "failed").Inc()
		return err
	}
	metrics.EventsConsumedTotal.WithLabelValues(c.cfg.Topic, "succeeded").Inc()
	return nil
}

func (c *Consumer) commitWithRetry(ctx context.Context, batch []kafka.Message) error {
	backoffs := []time.Duration{0, 1 * time.Second, 2 * time.Second}
	var lastErr error
	for attempt, wait := range backoffs {
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.reader.CommitMessages(ctx, batch...); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("commit attempt failed")
			continue
		}
		return nil
	}
	return lastErr
}

// Close stops the underlying consumer without waiting for a poll cycle.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
