package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// StageStatus is the progress of one stage within a run.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// HeaderLine, ProgressLine and DoneLine build the three kinds of log line.
func HeaderLine(label string) string { return "▸ " + label }

func ProgressLine(step string) string { return "  ◦ " + step }

func DoneLine(step string) string {
	return "  ✓ " + strings.Replace(step, "...", " — done", 1)
}

func failedLine(reason string) string { return "  ✗ " + reason }

// StageState is the observable state of one stage.
type StageState struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Sublabel  string        `json:"sublabel"`
	Status    StageStatus   `json:"status"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsedMs"`
}

// Snapshot is a consistent copy of a run's state.
type Snapshot struct {
	Stages []StageState `json:"stages"`
	// ActiveStage and ActiveSubStep are -1 when nothing is running.
	ActiveStage   int      `json:"activeStage"`
	ActiveSubStep int      `json:"activeSubStep"`
	ActiveStep    string   `json:"activeStep,omitempty"`
	Log           []string `json:"log"`
	Version       uint64   `json:"version"`
	Done          bool     `json:"done"`
	Failure       string   `json:"failure,omitempty"`
}

// Full is one animated run of the pipeline. A run for a pending skill is
// started with Start and walks every stage in order; a run for a reviewed
// skill is terminal from construction.
type Full struct {
	stages []Stage
	sched  scheduler.Scheduler
	timers *scheduler.Group

	mu         sync.Mutex
	status     []StageStatus
	startedAt  []time.Time
	finishedAt []time.Time
	activeSt   int
	activeSub  int
	log        []string
	version    uint64
	started    bool
	done       bool
	stopped    bool
	failure    string
	doneCh     chan struct{}
	subs       map[uint64]func(Snapshot)
	nextSub    uint64
}

// NewFull creates a run over stages for a skill with the given status.
func NewFull(stages []Stage, status skills.Status, sched scheduler.Scheduler) *Full {
	f := &Full{
		stages:     cloneStages(stages),
		sched:      sched,
		timers:     scheduler.NewGroup(sched),
		status:     make([]StageStatus, len(stages)),
		startedAt:  make([]time.Time, len(stages)),
		finishedAt: make([]time.Time, len(stages)),
		activeSt:   -1,
		activeSub:  -1,
		log:        []string{},
		doneCh:     make(chan struct{}),
		subs:       make(map[uint64]func(Snapshot)),
	}

	if status == skills.StatusPending {
		for i := range f.status {
			f.status[i] = StagePending
		}
		return f
	}

	for i, st := range f.stages {
		f.status[i] = StageComplete
		f.log = append(f.log, HeaderLine(st.Label))
		for _, step := range st.SubSteps {
			f.log = append(f.log, DoneLine(step))
		}
	}
	f.started = true
	f.finishLocked()
	return f
}

// Start begins the animation. It reports false when the run is terminal,
// stopped or already started.
func (f *Full) Start() bool {
	f.mu.Lock()
	if f.started || f.stopped {
		f.mu.Unlock()
		return false
	}
	f.started = true
	f.mu.Unlock()

	f.beginStage(0)
	return true
}

func (f *Full) beginStage(i int) {
	f.mu.Lock()
	if f.stopped || f.done {
		f.mu.Unlock()
		return
	}
	if i >= len(f.stages) {
		f.activeSt, f.activeSub = -1, -1
		f.finishLocked()
		snap := f.mutatedLocked()
		f.mu.Unlock()
		f.publish(snap)
		return
	}

	f.status[i] = StageRunning
	f.startedAt[i] = f.sched.Now()
	f.activeSt, f.activeSub = i, -1
	f.log = append(f.log, HeaderLine(f.stages[i].Label))
	snap := f.mutatedLocked()
	f.mu.Unlock()
	f.publish(snap)

	f.beginSubStep(i, 0)
}

func (f *Full) beginSubStep(i, j int) {
	f.mu.Lock()
	if f.stopped || f.done {
		f.mu.Unlock()
		return
	}
	st := f.stages[i]
	if j >= len(st.SubSteps) {
		f.status[i] = StageComplete
		f.finishedAt[i] = f.sched.Now()
		f.activeSub = -1
		snap := f.mutatedLocked()
		f.mu.Unlock()
		f.publish(snap)

		f.beginStage(i + 1)
		return
	}

	f.activeSub = j
	line := len(f.log)
	f.log = append(f.log, ProgressLine(st.SubSteps[j]))
	snap := f.mutatedLocked()
	f.mu.Unlock()
	f.publish(snap)

	f.timers.AfterFunc(st.StepDelay(), func() { f.finishSubStep(i, j, line) })
}

func (f *Full) finishSubStep(i, j, line int) {
	f.mu.Lock()
	if f.stopped || f.done {
		f.mu.Unlock()
		return
	}
	f.log[line] = DoneLine(f.stages[i].SubSteps[j])
	snap := f.mutatedLocked()
	f.mu.Unlock()
	f.publish(snap)

	f.beginSubStep(i, j+1)
}

// Fail marks the running stage failed and ends the run. It reports false
// when no stage is running.
func (f *Full) Fail(reason string) bool {
	f.mu.Lock()
	if f.stopped || f.done || f.activeSt < 0 {
		f.mu.Unlock()
		return false
	}
	i := f.activeSt
	f.status[i] = StageFailed
	f.finishedAt[i] = f.sched.Now()
	f.failure = reason
	f.log = append(f.log, failedLine(reason))
	f.activeSt, f.activeSub = -1, -1
	f.finishLocked()
	snap := f.mutatedLocked()
	f.mu.Unlock()

	f.timers.Stop()
	f.publish(snap)
	return true
}

// Stop cancels the run. Once it returns the run state no longer changes and
// no further timers are scheduled.
func (f *Full) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	if !f.done {
		close(f.doneCh)
	}
	f.subs = make(map[uint64]func(Snapshot))
	f.mu.Unlock()

	f.timers.Stop()
}

// Done is closed when the run finishes, fails or is stopped.
func (f *Full) Done() <-chan struct{} {
	return f.doneCh
}

// Snapshot returns the current state.
func (f *Full) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every mutation. fn is
// called without the run lock held, in mutation order.
func (f *Full) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *Full) finishLocked() {
	f.done = true
	if !f.stopped {
		close(f.doneCh)
	}
}

type published struct {
	snap Snapshot
	subs []func(Snapshot)
}

func (f *Full) mutatedLocked() published {
	f.version++
	p := published{snap: f.snapshotLocked()}
	for _, fn := range f.subs {
		p.subs = append(p.subs, fn)
	}
	return p
}

func (f *Full) publish(p published) {
	for _, fn := range p.subs {
		fn(p.snap)
	}
}

func (f *Full) snapshotLocked() Snapshot {
	now := f.sched.Now()
	snap := Snapshot{
		Stages:        make([]StageState, len(f.stages)),
		ActiveStage:   f.activeSt,
		ActiveSubStep: f.activeSub,
		Log:           append([]string(nil), f.log...),
		Version:       f.version,
		Done:          f.done,
		Failure:       f.failure,
	}
	for i, st := range f.stages {
		state := StageState{
			ID:       st.ID,
			Label:    st.Label,
			Sublabel: st.Sublabel,
			Status:   f.status[i],
		}
		if !f.startedAt[i].IsZero() {
			started := f.startedAt[i]
			state.StartedAt = &started
			end := now
			if !f.finishedAt[i].IsZero() {
				end = f.finishedAt[i]
			}
			state.Elapsed = end.Sub(started)
			state.ElapsedMS = state.Elapsed.Milliseconds()
		}
		snap.Stages[i] = state
	}
	if f.activeSt >= 0 && f.activeSub >= 0 {
		snap.ActiveStep = f.stages[f.activeSt].SubSteps[f.activeSub]
	}
	return snap
}
