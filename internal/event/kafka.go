package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"go-auth-service/internal/model"
)

const (
	DefaultTopic          = "user_events"
	defaultPublishTimeout = 3 * time.Second
	maxInFlight           = 64
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends UserCreated events to a Kafka topic. Each event gets a
// single write attempt, bounded by a timeout, on a background goroutine.
// Failures are logged and dropped.
type KafkaPublisher struct {
	writer   messageWriter
	timeout  time.Duration
	inFlight chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            1,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}

	return newKafkaPublisher(writer, timeout)
}

func newKafkaPublisher(writer messageWriter, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		writer:   writer,
		timeout:  timeout,
		inFlight: make(chan struct{}, maxInFlight),
		now:      time.Now,
	}
}

func (p *KafkaPublisher) PublishUserCreated(user model.UserView) {
	select {
	case p.inFlight <- struct{}{}:
	default:
		slog.Warn("event publisher saturated; UserCreated event not published", "user_id", user.ID)
		return
	}

	payload := NewUserCreated(user, p.now())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.inFlight }()

		if err := p.write(payload); err != nil {
			slog.Warn("failed to publish UserCreated event", "user_id", user.ID, "error", err)
			return
		}
		slog.Debug("published UserCreated event", "user_id", user.ID)
	}()
}

func (p *KafkaPublisher) write(payload UserCreated) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(payload.UserID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(payload.EventType)},
		},
	})
}

// Close waits for in-flight publishes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
