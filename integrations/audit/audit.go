package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"evmbridge/core/events"
	"evmbridge/core/types"
)

// DefaultRecentLimit bounds Recent when the caller passes no limit.
const DefaultRecentLimit = 100

// MaxRecentLimit caps a single Recent query.
const MaxRecentLimit = 1000

var errClosed = errors.New("audit: sink closed")

// Record is one committed bridge event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex" json:"sequence"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Attributes string    `gorm:"type:text" json:"attributes"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

// Event decodes the stored attributes back into the generic event form.
func (r Record) Event() (*types.Event, error) {
	evt := &types.Event{Type: r.Type, Attributes: map[string]string{}}
	if r.Attributes == "" {
		return evt, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &evt.Attributes); err != nil {
		return nil, fmt.Errorf("audit: decode record %s: %w", r.ID, err)
	}
	return evt, nil
}

// AutoMigrate creates the audit schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Sink persists committed events. It implements events.Emitter so it can be
// subscribed to the runtime directly.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Open connects to the sqlite database at dsn and prepares the schema.
func Open(dsn string, log *slog.Logger) (*Sink, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", dsn, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Sink, error) {
	if db == nil {
		return nil, errors.New("audit: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	var last Record
	res := db.Order("sequence desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("audit: load sequence: %w", res.Error)
	}
	return &Sink{db: db, logger: log, nowFn: time.Now, seq: last.Sequence}, nil
}

// SetNowFunc overrides the clock used for record timestamps.
func (s *Sink) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
}

// Emit implements events.Emitter. Failures are logged; auditing never blocks
// the state transition that produced the event.
func (s *Sink) Emit(evt events.Event) {
	if _, err := s.Record(evt); err != nil {
		s.logger.Error("audit record failed", "event", evt.EventType(), "error", err)
	}
}

// Record persists evt and returns the stored row.
func (s *Sink) Record(evt events.Event) (*Record, error) {
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	rec := &Record{
		ID:         uuid.New(),
		Sequence:   s.seq + 1,
		Type:       rendered.Type,
		Attributes: string(attrs),
		CreatedAt:  s.nowFn().UTC(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, err
	}
	s.seq = rec.Sequence
	return rec, nil
}

// Recent returns up to limit records, newest first. eventType filters by type
// when non-empty.
func (s *Sink) Recent(ctx context.Context, eventType string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	query := s.db.WithContext(ctx).Order("sequence desc").Limit(limit)
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var out []Record
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
