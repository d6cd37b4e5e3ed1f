package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

const (
	// NATS subject for generation completion events
	generationCompletedSubject = "leads.generation.completed"
)

// NATSPublisher mirrors completion events onto NATS so other assistant
// instances (and other services) can refresh their lead views.
//
//	Instance A (job finished)              Instance B
//	─────────────────────────              ──────────
//	  └─► LocalBus handlers
//	  └─► Publish to NATS ─────────────►  Listen
//	                                        └─► LocalBus handlers
type NATSPublisher struct {
	nc           *nats.Conn
	logger       *logger.Logger
	instanceID   string
	subscription *nats.Subscription
}

// NewNATSPublisher creates a publisher. Returns nil if the NATS connection is not available.
func NewNATSPublisher(nc *nats.Conn, logger *logger.Logger, instanceID string) *NATSPublisher {
	if nc == nil {
		return nil
	}

	return &NATSPublisher{
		nc:         nc,
		logger:     logger.WithComponent("nats-events"),
		instanceID: instanceID,
	}
}

// Publish sends ev to NATS, stamping it with this instance id.
func (p *NATSPublisher) Publish(ctx context.Context, ev GenerationCompleted) error {
	ev.InstanceID = p.instanceID

	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	if err := p.nc.Publish(generationCompletedSubject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", generationCompletedSubject, err)
	}

	p.logger.Debug("published generation completed to NATS",
		slog.String("session_id", ev.SessionID),
		slog.String("job_id", ev.JobID))
	return nil
}

// Listen delivers events published by other instances to bus.
// This should be called once during server startup.
func (p *NATSPublisher) Listen(bus *LocalBus) error {
	sub, err := p.nc.Subscribe(generationCompletedSubject, func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			p.logger.Warn("dropping malformed event",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()))
			return
		}
		if ev.InstanceID == p.instanceID {
			return
		}
		_ = bus.Publish(context.Background(), ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", generationCompletedSubject, err)
	}

	p.subscription = sub
	p.logger.Info("listening for generation events",
		slog.String("subject", generationCompletedSubject),
		slog.String("instance_id", p.instanceID))
	return nil
}

// Stop gracefully shuts down the subscription.
func (p *NATSPublisher) Stop() error {
	if p.subscription != nil {
		if err := p.subscription.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
	}
	p.logger.Info("nats event publisher stopped")
	return nil
}

func encodeEvent(ev GenerationCompleted) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (GenerationCompleted, error) {
	var ev GenerationCompleted
	if err := json.Unmarshal(data, &ev); err != nil {
		return GenerationCompleted{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.SessionID == "" {
		return GenerationCompleted{}, fmt.Errorf("event without session id")
	}
	return ev, nil
}
