package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mriscan/braintumor-go/internal/logger"
)

// reconnecter is implemented by clients that can retry in the background.
type reconnecter interface {
	StartReconnect()
}

// Publisher sends prediction events without blocking the caller.
type Publisher struct {
	client Client
	config Config

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher wraps client. Events go to config.Topic.
func NewPublisher(client Client, config Config) *Publisher {
	return &Publisher{client: client, config: config}
}

// Start connects to the broker. A failed connect is logged and retried in
// the background; the error is returned for the caller's information.
func (p *Publisher) Start(ctx context.Context) error {
	err := p.client.Connect(ctx)
	if err == nil {
		return nil
	}

	GetLogger().Warn("MQTT broker unavailable, events will be dropped until it connects",
		logger.String("broker", p.config.Broker),
		logger.Error(err))
	if r, ok := p.client.(reconnecter); ok {
		r.StartReconnect()
	}
	return err
}

// PublishPrediction queues event for publishing and returns immediately.
// Events are dropped while the broker is unreachable.
func (p *Publisher) PublishPrediction(event PredictionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		GetLogger().Error("failed to encode prediction event", logger.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, p.config.Topic, payload); err != nil {
			GetLogger().Warn("failed to publish prediction event",
				logger.String("topic", p.config.Topic),
				logger.Uint64("prediction_id", uint64(event.PredictionID)),
				logger.Error(err))
			return
		}
		GetLogger().Debug("prediction event published",
			logger.String("topic", p.config.Topic),
			logger.Uint64("prediction_id", uint64(event.PredictionID)))
	}()
}

// Close waits for in-flight publishes and disconnects. It is safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.client.Disconnect()
}
