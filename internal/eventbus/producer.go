package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// Event is anything this producer can publish: a JSON-serialisable value
// plus the key Kafka should partition and order on.
type Event interface {
	Key() []byte
}

// Producer lazily owns a single kafka.Writer per service, acks=all, gzip,
// small batch, short linger. kafka-go has no broker-level idempotent
// producer protocol, so "idempotent" here is carried at the application
// level: publish is retried and consumers are required to dedupe.
type Producer struct {
	mu      sync.Mutex
	writer  *kafka.Writer
	brokers []string
}

func NewProducer(brokers []string) *Producer {
	return &Producer{brokers: brokers}
}

func (p *Producer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		return p.writer
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		BatchBytes:   16384,
		BatchTimeout: 10 * time.Millisecond,
	}
	return p.writer
}

// Publish serialises event, composes its key and headers, and awaits
// broker acknowledgement. Failure after the caller's retry budget is
// reported as PUBLISH_FAILED.
func (p *Producer) Publish(ctx context.Context, topic string, event Event, eventType string, at time.Time, extraHeaders map[string]string) error {
	value, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.CodePublishFailed, "failed to encode event", err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "timestamp", Value: []byte(strconv.FormatInt(at.Unix(), 10))},
	}
	for k, v := range extraHeaders {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     event.Key(),
		Value:   value,
		Headers: headers,
	}

	if err := p.writerFor(topic).WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublishFailedTotal.WithLabelValues(topic).Inc()
		return apperr.Wrap(apperr.CodePublishFailed, "broker rejected publish", err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

// PublishWithRetry retries Publish up to three attempts total with the
// fixed exponential backoff (1s, 2s) used throughout this pipeline for
// best-effort side-effect publishing. Call sites that must not block the
// primary path run this in a goroutine.
func (p *Producer) PublishWithRetry(ctx context.Context, topic string, event Event, eventType string, at time.Time, extraHeaders map[string]string) error {
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
		if err := p.Publish(ctx, topic, event, eventType, at, extraHeaders); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("topic", topic).Int("attempt", attempt+1).Msg("publish attempt failed")
			continue
		}
		return nil
	}
	return lastErr
}

// PublishBatch fires every event concurrently; if any send fails, it logs
// the failure count and fails the whole call. Partial success is not
// rolled back — callers rely on consumer-side idempotence.
func (p *Producer) PublishBatch(ctx context.Context, topic string, events []Event, eventType string, at time.Time) error {
	var wg sync.WaitGroup
	errs := make([]error, len(events))

	for i, event := range events {
		wg.Add(1)
		go func(i int, event Event) {
			defer wg.Done()
			errs[i] = p.Publish(ctx, topic, event, eventType, at, nil)
		}(i, event)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		log.Warn().Str("topic", topic).Int("failed", failed).Int("total", len(events)).Msg("batch publish had failures")
		return apperr.New(apperr.CodePublishFailed, fmt.Sprintf("%d of %d events failed to publish", failed, len(events)))
	}
	return nil
}

// Close flushes and closes the underlying writer, if one was created.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
