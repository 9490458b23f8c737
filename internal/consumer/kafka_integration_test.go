//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/Ademcan75/pomopro-dev/internal/events"
)

func TestProcessorConsumesFramedEventsFromKafka(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	topic := "session_events"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "session-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	handler := &capturingHandler{}

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()

	proc := NewProcessor(reader, handler)
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	endedAt := time.Now().UTC()
	evt := events.SessionCompleted{
		SessionID:     "sess-int",
		TenantID:      "tenant",
		UserID:        "user",
		Kind:          "focus",
		StartedAt:     endedAt.Add(-25 * time.Minute),
		EndedAt:       &endedAt,
		PlannedMin:    25,
		DurationSec:   25 * 60,
		Interruptions: 1,
		Source:        "integration-test",
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(17))
	copy(value[5:], payload)

	err = writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(evt.TenantID + ":" + evt.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("session.completed")},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
			{Key: "schema_subject", Value: []byte("session_events-value")},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return handler.count() >= 1
	}, 30*time.Second, 500*time.Millisecond)

	got := handler.first()
	require.Equal(t, "session.completed", got.EventType)
	require.Equal(t, "tenant", got.TenantID)
	require.Equal(t, 17, got.SchemaID)

	var decoded events.SessionCompleted
	require.NoError(t, json.Unmarshal(got.Payload, &decoded))
	require.Equal(t, evt.SessionID, decoded.SessionID)
	require.Equal(t, evt.DurationSec, decoded.DurationSec)
}

type capturingHandler struct {
	mu       sync.Mutex
	messages []Record
}

func (h *capturingHandler) Handle(_ context.Context, msg Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

func (h *capturingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *capturingHandler) first() Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[0]
}
