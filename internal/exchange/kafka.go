package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers         []string
	ExchangeTopic   string
	TranscriptTopic string
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes exchange records, and optionally final transcript
// tokens, keyed by session id.
type KafkaSink struct {
	exchanges   messageWriter
	transcripts messageWriter
}

// TranscriptEvent is the payload published for each accepted batch of final
// tokens.
type TranscriptEvent struct {
	SessionID string             `json:"session_id"`
	VideoID   string             `json:"video_id,omitempty"`
	Tokens    []transcript.Token `json:"tokens"`
	SentAt    time.Time          `json:"sent_at"`
}

// NewKafkaSink creates the writers. The transcript writer is only created
// when cfg.TranscriptTopic is set.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("exchange: kafka: no brokers configured")
	}
	if cfg.ExchangeTopic == "" {
		return nil, errors.New("exchange: kafka: exchange topic is required")
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	s := &KafkaSink{exchanges: newWriter(cfg.ExchangeTopic)}
	if cfg.TranscriptTopic != "" {
		s.transcripts = newWriter(cfg.TranscriptTopic)
	}
	slog.Info("exchange: kafka publisher initialised",
		"brokers", cfg.Brokers,
		"exchange_topic", cfg.ExchangeTopic,
		"transcript_topic", cfg.TranscriptTopic,
	)
	return s, nil
}

// Name implements the sink naming used in metrics.
func (s *KafkaSink) Name() string { return "kafka" }

// Write publishes rec to the exchange topic.
func (s *KafkaSink) Write(ctx context.Context, rec Record) error {
	msg, err := newMessage(rec.SessionID, "exchange", rec)
	if err != nil {
		return err
	}
	if err := s.exchanges.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("exchange: kafka: write exchange: %w", err)
	}
	return nil
}

// PublishTranscript publishes a batch of accepted final tokens to the
// transcript topic. It is a no-op when no transcript topic is configured.
func (s *KafkaSink) PublishTranscript(ctx context.Context, sessionID, videoID string, tokens []transcript.Token) error {
	if s.transcripts == nil || len(tokens) == 0 {
		return nil
	}
	ev := TranscriptEvent{
		SessionID: sessionID,
		VideoID:   videoID,
		Tokens:    tokens,
		SentAt:    time.Now().UTC(),
	}
	msg, err := newMessage(sessionID, "transcript_final", ev)
	if err != nil {
		return err
	}
	if err := s.transcripts.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("exchange: kafka: write transcript: %w", err)
	}
	return nil
}

// Close closes both writers.
func (s *KafkaSink) Close() error {
	var errs []error
	if err := s.exchanges.Close(); err != nil {
		errs = append(errs, fmt.Errorf("exchange writer: %w", err))
	}
	if s.transcripts != nil {
		if err := s.transcripts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transcript writer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newMessage(key, eventType string, payload any) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("exchange: kafka: marshal %s: %w", eventType, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}, nil
}
