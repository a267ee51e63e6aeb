// Package queue holds the manual review queue for uploads whose risk score
// lands in the REVIEW band. Items are priority ordered by risk score so
// reviewers see the most dangerous uploads first.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/uploadguard/uploadguard/internal/models"
)

const (
	ReviewQueue      = "uploadguard:review:pending"
	ReviewProcessing = "uploadguard:review:processing"
	ReviewResolved   = "uploadguard:review:resolved"
	ItemPrefix       = "uploadguard:review:item:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Queue struct {
	client *redis.Client
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Item is one upload awaiting reviewer attention.
type Item struct {
	ID            uuid.UUID          `json:"id"`
	UploadID      uuid.UUID          `json:"upload_id"`
	CorrelationID string             `json:"correlation_id"`
	Filename      string             `json:"filename"`
	OwnerID       string             `json:"owner_id"`
	RiskScore     int                `json:"risk_score"`
	ThreatLevel   models.ThreatLevel `json:"threat_level"`
	Reason        string             `json:"reason"`
	EnqueuedAt    time.Time          `json:"enqueued_at"`
}

// Resolution is the reviewer's verdict on a dequeued item.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// Enqueue adds an item scored so higher risk dequeues before lower, and
// within the same score older items dequeue first.
func (q *Queue) Enqueue(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.EnqueuedAt = time.Now()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling review item: %w", err)
	}

	score := float64(item.EnqueuedAt.Unix()) - float64(item.RiskScore*1000)

	if err := q.client.ZAdd(ctx, ReviewQueue, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing review item: %w", err)
	}

	key := ItemPrefix + item.ID.String()
	if err := q.client.Set(ctx, key, string(data), 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("recording review item: %w", err)
	}

	return nil
}

// Dequeue pops the highest priority item and moves it to the processing
// set. Returns nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Item, error) {
	results, err := q.client.ZPopMin(ctx, ReviewQueue, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing review item: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var item Item
	if err := json.Unmarshal([]byte(results[0].Member.(string)), &item); err != nil {
		return nil, fmt.Errorf("unmarshaling review item: %w", err)
	}

	if err := q.client.SAdd(ctx, ReviewProcessing, results[0].Member).Err(); err != nil {
		q.client.ZAdd(ctx, ReviewQueue, redis.Z{
			Score:  results[0].Score,
			Member: results[0].Member,
		})
		return nil, fmt.Errorf("marking item under review: %w", err)
	}

	return &item, nil
}

// Resolve records the reviewer verdict and removes the item from the
// processing set.
func (q *Queue) Resolve(ctx context.Context, item *Item, resolution Resolution) error {
	data, _ := json.Marshal(item)

	q.client.SRem(ctx, ReviewProcessing, string(data))

	record := map[string]interface{}{
		"item":        item,
		"resolution":  resolution,
		"resolved_at": time.Now(),
	}
	recordData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling resolution: %w", err)
	}

	if err := q.client.SAdd(ctx, ReviewResolved, string(recordData)).Err(); err != nil {
		return fmt.Errorf("recording resolution: %w", err)
	}

	return nil
}

// Get fetches an item by id regardless of queue position.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	data, err := q.client.Get(ctx, ItemPrefix+id.String()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting review item: %w", err)
	}

	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("unmarshaling review item: %w", err)
	}
	return &item, nil
}

func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	pending, _ := q.client.ZCard(ctx, ReviewQueue).Result()
	processing, _ := q.client.SCard(ctx, ReviewProcessing).Result()
	resolved, _ := q.client.SCard(ctx, ReviewResolved).Result()

	stats["pending"] = pending
	stats["processing"] = processing
	stats["resolved"] = resolved

	return stats, nil
}
