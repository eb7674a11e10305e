package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReportNotFound is returned for unknown or expired job ids.
var ErrReportNotFound = errors.New("notify: report not found")

// ReportTTL is how long finished reports stay retrievable.
const ReportTTL = 7 * 24 * time.Hour

// ReportStore keeps finished dispatch reports for operators.
type ReportStore interface {
	Save(ctx context.Context, r Report) error
	Get(ctx context.Context, jobID string) (Report, error)
}

// RedisReportStore stores reports as JSON strings with a TTL.
type RedisReportStore struct {
	client *redis.Client
	prefix string
}

// NewRedisReportStore creates a store under the given key prefix.
func NewRedisReportStore(client *redis.Client, prefix string) *RedisReportStore {
	if prefix == "" {
		prefix = "clubcheckin:dispatch:"
	}
	return &RedisReportStore{client: client, prefix: prefix}
}

func (s *RedisReportStore) Save(ctx context.Context, r Report) error {
	if r.JobID == "" {
		return errors.New("notify: report without job id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("notify: encode report: %w", err)
	}
	return s.client.Set(ctx, s.prefix+r.JobID, raw, ReportTTL).Err()
}

func (s *RedisReportStore) Get(ctx context.Context, jobID string) (Report, error) {
	raw, err := s.client.Get(ctx, s.prefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("notify: load report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, fmt.Errorf("notify: decode report: %w", err)
	}
	return r, nil
}

// InMemoryReportStore keeps reports in a map; entries do not expire.
type InMemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewInMemoryReportStore creates an empty store.
func NewInMemoryReportStore() *InMemoryReportStore {
	return &InMemoryReportStore{reports: make(map[string]Report)}
}

func (s *InMemoryReportStore) Save(_ context.Context, r Report) error {
	if r.JobID == "" {
		return errors.New("notify: report without job id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.JobID] = r
	return nil
}

func (s *InMemoryReportStore) Get(_ context.Context, jobID string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[jobID]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return r, nil
}
