package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/snapshot"
)

// Publisher defines the interface for publishing account and intent events.
type Publisher interface {
	// PublishSnapshot publishes an account snapshot to "accounts.{owner}".
	PublishSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot) error

	// PublishIntent publishes an intent's terminal outcome to
	// "intents.{owner}".
	PublishIntent(ctx context.Context, out orchestrator.Outcome) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for account events.
	StreamName = "TOKENMILL"

	// StreamRetention is how long events are retained. Events feed live UI
	// streams; a day of replay is plenty.
	StreamRetention = 24 * time.Hour
)

// StreamSubjects are the subject patterns captured by the stream.
var StreamSubjects = []string{"accounts.*", "intents.*"}

// SnapshotSubject returns the subject snapshots for owner are published to.
func SnapshotSubject(owner string) string {
	return fmt.Sprintf("accounts.%s", owner)
}

// IntentSubject returns the subject intent outcomes for owner are published to.
func IntentSubject(owner string) string {
	return fmt.Sprintf("intents.%s", owner)
}

// NewPublisher creates a new JetStream publisher. It connects to NATS and
// ensures the stream exists. m may be nil.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("tokenmill-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Account snapshots and intent outcomes",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishSnapshot publishes an account snapshot event.
func (p *JetStreamPublisher) PublishSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot) error {
	event := FromSnapshot(snap)
	subject := SnapshotSubject(event.Owner)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	p.logger.Debug("published snapshot event",
		"subject", subject,
		"owner", event.Owner,
		"tokens", len(event.Tokens),
	)
	return nil
}

// PublishIntent publishes an intent terminal outcome event.
func (p *JetStreamPublisher) PublishIntent(ctx context.Context, out orchestrator.Outcome) error {
	event := FromOutcome(out)
	subject := IntentSubject(event.Owner)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish intent outcome: %w", err)
	}

	p.logger.Debug("published intent event",
		"subject", subject,
		"intent", event.Intent,
		"state", event.State,
	)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	return err
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
