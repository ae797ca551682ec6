package cleanup

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	rlib "github.com/Laisky/campus-portal/library/db/redis"
)

// ErrNoReport is returned when a disk has never been swept.
var ErrNoReport = errors.New("no sweep report")

// Report is the outcome of one disk sweep.
type Report struct {
	Disk       disk.Name     `json:"disk"`
	Days       int           `json:"days"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Scanned    int           `json:"scanned"`
	Candidates []string      `json:"candidates"`
	Deleted    int           `json:"deleted"`
	// StaleRecords are records whose object was already gone.
	StaleRecords   []string `json:"stale_records,omitempty"`
	RecordsRemoved int      `json:"records_removed"`
	Failed         int      `json:"failed"`
	// Error is the disk-level failure of the sweep, if any.
	Error string `json:"error,omitempty"`
}

// ReportStore keeps the last report of each disk.
type ReportStore interface {
	SaveReport(ctx context.Context, report Report) error
	LoadReport(ctx context.Context, name disk.Name) (Report, error)
}

// MemoryReportStore keeps reports in process memory.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[disk.Name]Report
}

// NewMemoryReportStore constructs an empty in-memory store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: map[disk.Name]Report{}}
}

// SaveReport replaces the report of report.Disk.
func (s *MemoryReportStore) SaveReport(_ context.Context, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.Disk] = report
	return nil
}

// LoadReport returns the last report of name.
func (s *MemoryReportStore) LoadReport(_ context.Context, name disk.Name) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[name]
	if !ok {
		return Report{}, errors.Wrapf(ErrNoReport, "%s", name)
	}
	return report, nil
}

// JSONStore is a key-value store of json documents.
type JSONStore interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) error
}

// RedisReportStore keeps reports in redis so every process sees the same last sweep.
type RedisReportStore struct {
	store JSONStore
	ttl   time.Duration
}

// NewRedisReportStore constructs a report store on store. A zero ttl keeps reports forever.
func NewRedisReportStore(store JSONStore, ttl time.Duration) *RedisReportStore {
	return &RedisReportStore{store: store, ttl: ttl}
}

// SaveReport writes the report of report.Disk.
func (s *RedisReportStore) SaveReport(ctx context.Context, report Report) error {
	if err := s.store.SetJSON(ctx, rlib.KeyPrefixCleanupReport+report.Disk.String(), report, s.ttl); err != nil {
		return errors.Wrap(err, "save sweep report")
	}
	return nil
}

// LoadReport reads the report of name.
func (s *RedisReportStore) LoadReport(ctx context.Context, name disk.Name) (Report, error) {
	var report Report
	if err := s.store.GetJSON(ctx, rlib.KeyPrefixCleanupReport+name.String(), &report); err != nil {
		if errors.Is(err, rlib.ErrNotFound) {
			return Report{}, errors.Wrapf(ErrNoReport, "%s", name)
		}
		return Report{}, errors.Wrap(err, "load sweep report")
	}
	return report, nil
}
