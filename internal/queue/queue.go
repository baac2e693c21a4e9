// Package queue publishes fallback messages and enrichment tasks to workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher sends a payload to a named topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// ThumbnailTask asks a worker to render a thumbnail for a saved item
type ThumbnailTask struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
	Slug   string `json:"slug"`
}

// RedisConfig holds the connection settings for RedisQueue
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisQueue pushes JSON payloads onto Redis lists, one list per topic
type RedisQueue struct {
	client         *redis.Client
	thumbnailTopic string
	logger         *logrus.Logger
}

// NewRedisQueue connects to Redis and verifies the connection
func NewRedisQueue(ctx context.Context, cfg RedisConfig, thumbnailTopic string, logger *logrus.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisQueue{client: client, thumbnailTopic: thumbnailTopic, logger: logger}, nil
}

// Publish marshals payload to JSON and appends it to the topic list
func (q *RedisQueue) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}
	if err := q.client.RPush(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	q.logger.WithField("topic", topic).Debug("Published message")
	return nil
}

// EnqueueThumbnailTask schedules thumbnail generation and returns the task id
func (q *RedisQueue) EnqueueThumbnailTask(ctx context.Context, userID, slug string) (string, error) {
	return enqueueThumbnail(ctx, q, q.thumbnailTopic, userID, slug)
}

// Pop removes the oldest payload from topic, returning redis.Nil when empty.
// It is the consumer side used by thumbnail and fallback workers.
func (q *RedisQueue) Pop(ctx context.Context, topic string) ([]byte, error) {
	return q.client.LPop(ctx, topic).Bytes()
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func enqueueThumbnail(ctx context.Context, p Publisher, topic, userID, slug string) (string, error) {
	task := ThumbnailTask{TaskID: uuid.NewString(), UserID: userID, Slug: slug}
	if err := p.Publish(ctx, topic, task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

// MemoryQueue keeps published payloads in process. It is used when Redis is
// not configured, and by tests.
type MemoryQueue struct {
	mu             sync.Mutex
	topics         map[string][][]byte
	thumbnailTopic string
}

// NewMemoryQueue creates an empty in-process queue
func NewMemoryQueue(thumbnailTopic string) *MemoryQueue {
	return &MemoryQueue{topics: make(map[string][][]byte), thumbnailTopic: thumbnailTopic}
}

// Publish records the JSON encoding of payload under topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.topics[topic] = append(q.topics[topic], data)
	return nil
}

// EnqueueThumbnailTask records a thumbnail task and returns its id
func (q *MemoryQueue) EnqueueThumbnailTask(ctx context.Context, userID, slug string) (string, error) {
	return enqueueThumbnail(ctx, q, q.thumbnailTopic, userID, slug)
}

// Messages returns a copy of everything published to topic
func (q *MemoryQueue) Messages(topic string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.topics[topic]...)
}

// Len returns the number of messages published to topic
func (q *MemoryQueue) Len(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.topics[topic])
}
