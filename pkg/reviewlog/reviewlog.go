// Package reviewlog appends registry events to a SQLite audit table. The log
// is write-mostly: it is queried for history but never replayed into the
// registry.
package reviewlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/jingkaihe/skillhub/pkg/db/migrations"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/registry"
)

// Actors recorded alongside each event.
const (
	ActorSubmitter  = "submitter"
	ActorAdmin      = "admin"
	ActorAutoReject = "auto-reject"
	ActorSystem     = "system"
)

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Entry is one persisted event.
type Entry struct {
	ID         int64              `json:"id"`
	Kind       registry.EventKind `json:"kind"`
	SkillID    string             `json:"skillId,omitempty"`
	Title      string             `json:"title,omitempty"`
	Status     string             `json:"status,omitempty"`
	Role       string             `json:"role,omitempty"`
	Notes      string             `json:"notes,omitempty"`
	Actor      string             `json:"actor"`
	Overall    int                `json:"overall"`
	Skill      json.RawMessage    `json:"skill,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

type dbEntry struct {
	ID         int64  `db:"id"`
	Kind       string `db:"kind"`
	SkillID    string `db:"skill_id"`
	Title      string `db:"title"`
	Status     string `db:"status"`
	Role       string `db:"role"`
	Notes      string `db:"notes"`
	Actor      string `db:"actor"`
	Overall    int    `db:"overall"`
	Payload    string `db:"payload"`
	OccurredAt string `db:"occurred_at"`
}

func (r dbEntry) toEntry() (Entry, error) {
	at, err := time.Parse(time.RFC3339Nano, r.OccurredAt)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to parse occurred_at of event %d", r.ID)
	}
	e := Entry{
		ID:         r.ID,
		Kind:       registry.EventKind(r.Kind),
		SkillID:    r.SkillID,
		Title:      r.Title,
		Status:     r.Status,
		Role:       r.Role,
		Notes:      r.Notes,
		Actor:      r.Actor,
		Overall:    r.Overall,
		OccurredAt: at,
	}
	if r.Payload != "" && r.Payload != "{}" {
		e.Skill = json.RawMessage(r.Payload)
	}
	return e, nil
}

// Store persists registry events. It implements registry.Observer.
type Store struct {
	db *sqlx.DB
}

// Open opens the database at path, applies pending migrations and returns a
// store that owns the connection.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := db.OpenAndMigrate(ctx, path, migrations.All())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open review log")
	}
	return &Store{db: sqlDB}, nil
}

// New wraps an already migrated database.
func New(sqlDB *sqlx.DB) *Store {
	return &Store{db: sqlDB}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Notify records e, logging rather than returning failures since observers
// cannot fail a registry mutation.
func (s *Store) Notify(e registry.Event) {
	ctx := logger.WithSkill(context.Background(), e.Skill.ID)
	if err := s.Record(ctx, e); err != nil {
		logger.G(ctx).WithError(err).WithField("kind", e.Kind).Warn("failed to record review event")
	}
}

// Record appends e to the log.
func (s *Store) Record(ctx context.Context, e registry.Event) error {
	payload := "{}"
	overall := 0
	if e.Skill.ID != "" {
		b, err := json.Marshal(e.Skill)
		if err != nil {
			return errors.Wrap(err, "failed to marshal skill snapshot")
		}
		payload = string(b)
		overall = e.Skill.EvaluationScores.Overall()
	}

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_events (
			kind, skill_id, title, status, role, notes, actor, overall, payload, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.Kind), e.Skill.ID, e.Skill.Title, string(e.Skill.Status), string(e.Role),
		e.Notes, actorFor(e.Kind), overall, payload, at.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "failed to insert review event")
}

func actorFor(kind registry.EventKind) string {
	switch kind {
	case registry.EventAdded:
		return ActorSubmitter
	case registry.EventStatusChanged:
		return ActorAdmin
	case registry.EventAutoRejected:
		return ActorAutoReject
	}
	return ActorSystem
}

const selectColumns = `SELECT id, kind, skill_id, title, status, role, notes, actor, overall, payload, occurred_at FROM review_events`

// History returns the events of one skill, oldest first.
func (s *Store) History(ctx context.Context, skillID string) ([]Entry, error) {
	var rows []dbEntry
	if err := s.db.SelectContext(ctx, &rows, selectColumns+` WHERE skill_id = ? ORDER BY id`, skillID); err != nil {
		return nil, errors.Wrapf(err, "failed to query history of skill %s", skillID)
	}
	return toEntries(rows)
}

// Recent returns the newest events across all skills, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var rows []dbEntry
	if err := s.db.SelectContext(ctx, &rows, selectColumns+` ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, errors.Wrap(err, "failed to query recent review events")
	}
	return toEntries(rows)
}

// Count returns the number of recorded events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM review_events"); err != nil {
		return 0, errors.Wrap(err, "failed to count review events")
	}
	return n, nil
}

func toEntries(rows []dbEntry) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
