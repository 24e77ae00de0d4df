package kafka

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"task-runtime-service/internal/task-runtime/events"
)

const DefaultTaskRunTopic = "task_run_events"

// NewRunEventWriter builds the producer for task run events, or returns nil
// when KAFKA_BROKERS is unset (event publishing disabled).
func NewRunEventWriter() *kafka.Writer {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		log.Println("KAFKA_BROKERS not set, task run events disabled")
		return nil
	}
	topic := os.Getenv("TASK_RUN_TOPIC")
	if topic == "" {
		topic = DefaultTaskRunTopic
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      strings.Split(brokers, ","),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	log.Printf("Task run event producer configured for topic: %s", topic)
	return writer
}

// RunEventPublisher publishes run events without ever failing the invocation
// that produced them. A nil writer makes every publish a no-op.
type RunEventPublisher struct {
	Writer *kafka.Writer
}

func NewRunEventPublisher(writer *kafka.Writer) *RunEventPublisher {
	return &RunEventPublisher{Writer: writer}
}

func (p *RunEventPublisher) Publish(ctx context.Context, payload events.TaskRunPayload) {
	if p == nil || p.Writer == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("run event marshal failed for invocation %s: %v", payload.InvocationID, err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg := kafka.Message{Key: []byte(payload.Tenant + "/" + payload.TaskID), Value: raw}
	if err := p.Writer.WriteMessages(writeCtx, msg); err != nil {
		log.Printf("run event publish failed for invocation %s: %v", payload.InvocationID, err)
	}
}

func (p *RunEventPublisher) Close() error {
	if p == nil || p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}
