package pipeline

import (
	"sync"
	"time"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// CompactTick is how often the active dot of a pending compact view moves.
const CompactTick = 600 * time.Millisecond

// CompactSnapshot is the state of a compact indicator.
type CompactSnapshot struct {
	Pending    bool              `json:"pending"`
	StageCount int               `json:"stageCount"`
	ActiveDot  int               `json:"activeDot"`
	Overall    int               `json:"overall"`
	Grade      *evaluation.Grade `json:"grade,omitempty"`
}

// Compact is the single-line pipeline indicator shown on listings. While
// the skill is pending a dot cycles over the stages; afterwards it shows the
// overall score.
type Compact struct {
	result     evaluation.Result
	schema     evaluation.Schema
	pending    bool
	stageCount int
	timers     *scheduler.Group

	mu      sync.Mutex
	dot     int
	ticking bool
	stopped bool
}

// CompactOption configures a Compact view.
type CompactOption func(*Compact)

// WithCompactSchema sets the schema used to grade the overall score.
func WithCompactSchema(schema evaluation.Schema) CompactOption {
	return func(c *Compact) {
		c.schema = schema
	}
}

// NewCompact creates a compact view. stageCount below 1 is treated as 1.
func NewCompact(result evaluation.Result, status skills.Status, sched scheduler.Scheduler, stageCount int, opts ...CompactOption) *Compact {
	if stageCount < 1 {
		stageCount = 1
	}
	c := &Compact{
		result:     result.Clone(),
		schema:     evaluation.Default(),
		pending:    status == skills.StatusPending,
		stageCount: stageCount,
		timers:     scheduler.NewGroup(sched),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins cycling the dot. It does nothing for reviewed skills.
func (c *Compact) Start() {
	c.mu.Lock()
	if !c.pending || c.ticking || c.stopped {
		c.mu.Unlock()
		return
	}
	c.ticking = true
	c.mu.Unlock()

	c.arm()
}

func (c *Compact) arm() {
	c.timers.AfterFunc(CompactTick, c.tick)
}

func (c *Compact) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.dot = (c.dot + 1) % c.stageCount
	c.mu.Unlock()

	c.arm()
}

// Stop halts the ticker.
func (c *Compact) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.timers.Stop()
}

// Snapshot returns the current indicator state.
func (c *Compact) Snapshot() CompactSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := CompactSnapshot{
		Pending:    c.pending,
		StageCount: c.stageCount,
		ActiveDot:  c.dot,
	}
	if !c.pending {
		snap.Overall = c.result.Overall()
		grade := c.schema.Grade(snap.Overall)
		snap.Grade = &grade
	}
	return snap
}
