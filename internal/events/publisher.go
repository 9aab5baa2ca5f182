package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bimasaputra/lendtrack/internal/engine"
)

// Publisher implements engine.OutcomePublisher on top of Redis.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishOutcome fans one scan outcome out to the device result stream
// and the realtime channel. Both deliveries are attempted even if the
// first fails; the first error is returned for the caller to log.
func (p *Publisher) PublishOutcome(ctx context.Context, out *engine.Outcome) error {
	status := "success"
	if !out.Success {
		status = "failed"
	}
	name := ""
	if out.User != nil {
		name = out.User.Name
	}

	var firstErr error
	if err := p.publish(ctx, ScanResultsStream, ScanResult, DeviceResult{
		Status:  status,
		Action:  string(out.Kind),
		UID:     out.UID,
		Name:    name,
		Message: out.Message,
	}); err != nil {
		firstErr = err
	}

	if err := p.broadcast(ctx, out); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishScan queues an inbound scan onto the scan-events stream, the
// same entry format edge devices produce.
func (p *Publisher) PublishScan(ctx context.Context, msg ScanMessage) error {
	return p.publish(ctx, ScanEventsStream, ScanReceived, msg)
}

func (p *Publisher) publish(ctx context.Context, stream, eventType string, data any) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": eventJSON},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) broadcast(ctx context.Context, out *engine.Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := p.client.Publish(ctx, RealtimeChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to broadcast outcome: %w", err)
	}
	return nil
}
