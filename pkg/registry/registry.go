// Package registry holds the in-memory skill collection, the viewer role and
// the deferred auto-rejection policy.
//
// Every mutation reads the current collection, builds a new one and installs
// it under the registry lock, so concurrent callers (HTTP handlers, timer
// callbacks, the CLI) never observe a half-applied change. Observers are
// notified after the lock is released.
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/telemetry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// Registry is the skill store. Create it with New and release its timers
// with Close.
type Registry struct {
	sched       scheduler.Scheduler
	schema      evaluation.Schema
	policy      AutoRejectPolicy
	policySet   bool
	autoReject  bool
	newID       func() string
	initial     []skills.Skill
	defaultRole skills.Role

	mu        sync.RWMutex
	skills    []skills.Skill
	role      skills.Role
	timers    *scheduler.Group
	observers []subscription
	nextSubID uint64
}

type subscription struct {
	id uint64
	o  Observer
}

// Option configures a Registry.
type Option func(*Registry) error

// WithScheduler sets the clock and timer source. Tests use scheduler.Manual.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(r *Registry) error {
		if s == nil {
			return errors.New("scheduler cannot be nil")
		}
		r.sched = s
		return nil
	}
}

// WithInitialSkills seeds the collection. Reset restores it.
func WithInitialSkills(list []skills.Skill) Option {
	return func(r *Registry) error {
		seen := make(map[string]struct{}, len(list))
		for _, s := range list {
			if s.ID == "" {
				return errors.Errorf("initial skill %q has no id", s.Title)
			}
			if _, dup := seen[s.ID]; dup {
				return errors.Errorf("duplicate initial skill id %q", s.ID)
			}
			if !s.Status.Valid() {
				return errors.Errorf("initial skill %q has invalid status %q", s.ID, s.Status)
			}
			seen[s.ID] = struct{}{}
		}
		r.initial = cloneAll(list)
		return nil
	}
}

// WithSchema sets the active score schema. The default auto-reject result is
// authored for it.
func WithSchema(schema evaluation.Schema) Option {
	return func(r *Registry) error {
		r.schema = schema
		return nil
	}
}

// WithAutoRejectPolicy replaces the built-in auto-reject policy.
func WithAutoRejectPolicy(p AutoRejectPolicy) Option {
	return func(r *Registry) error {
		if p.Delay < 0 {
			return errors.Errorf("auto-reject delay must not be negative, got %s", p.Delay)
		}
		r.policy = p
		r.policySet = true
		r.autoReject = true
		return nil
	}
}

// WithoutAutoReject disables the auto-reject policy.
func WithoutAutoReject() Option {
	return func(r *Registry) error {
		r.autoReject = false
		r.policySet = true
		r.policy = AutoRejectPolicy{}
		return nil
	}
}

// WithObserver registers an observer for the lifetime of the registry.
func WithObserver(o Observer) Option {
	return func(r *Registry) error {
		if o == nil {
			return errors.New("observer cannot be nil")
		}
		r.nextSubID++
		r.observers = append(r.observers, subscription{id: r.nextSubID, o: o})
		return nil
	}
}

// WithIDGenerator overrides the uuid id generator.
func WithIDGenerator(f func() string) Option {
	return func(r *Registry) error {
		if f == nil {
			return errors.New("id generator cannot be nil")
		}
		r.newID = f
		return nil
	}
}

// WithDefaultRole sets the role a new or reset registry starts with.
func WithDefaultRole(role skills.Role) Option {
	return func(r *Registry) error {
		if _, ok := skills.ParseRole(string(role)); !ok {
			return errors.Errorf("invalid role %q", role)
		}
		r.defaultRole = role
		return nil
	}
}

// New creates a Registry. Without options it is empty, uses the real clock,
// the safety5 schema and the default auto-reject policy.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		sched:       scheduler.Real(),
		schema:      evaluation.Default(),
		autoReject:  true,
		newID:       uuid.NewString,
		defaultRole: skills.RoleEmployee,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.Wrap(err, "failed to apply registry option")
		}
	}
	if !r.policySet {
		r.policy = DefaultAutoRejectPolicy(r.schema)
	}

	r.skills = cloneAll(r.initial)
	r.role = r.defaultRole
	r.timers = scheduler.NewGroup(r.sched)
	return r, nil
}

// Schema returns the active score schema.
func (r *Registry) Schema() evaluation.Schema {
	return r.schema
}

// Policy returns the auto-reject policy and whether it is enabled.
func (r *Registry) Policy() (AutoRejectPolicy, bool) {
	return r.policy, r.autoReject
}

// Add stores a new pending skill at the front of the collection and, when
// the auto-reject policy matches its title, schedules its rejection.
func (r *Registry) Add(ctx context.Context, d skills.Draft) skills.Skill {
	ctx, span := telemetry.Start(ctx, "registry.add", attribute.String("skill.title", d.Title))
	defer span.End()

	r.mu.Lock()
	s := d.ToSkill(r.newID(), r.sched.Now())
	if s.Tags == nil {
		s.Tags = []string{}
	}
	next := make([]skills.Skill, 0, len(r.skills)+1)
	next = append(next, s)
	next = append(next, r.skills...)
	r.skills = next
	timers := r.timers
	observers := r.observersLocked()
	r.mu.Unlock()

	span.SetAttributes(telemetry.SkillAttr(s.ID))
	ctx = logger.WithSkill(ctx, s.ID)
	log := logger.G(ctx).WithField("title", s.Title)
	log.Info("skill submitted")

	if r.autoReject && r.policy.Matches(s.Title) {
		bg := context.WithoutCancel(ctx)
		id := s.ID
		timers.AfterFunc(r.policy.Delay, func() { r.applyAutoReject(bg, id) })
		log.WithField("delay", r.policy.Delay).Debug("auto-rejection scheduled")
	}

	r.notify(observers, Event{Kind: EventAdded, Skill: s.Clone(), At: s.SubmittedAt})
	return s.Clone()
}

// UpdateStatus sets the status of id. Non-nil notes overwrite adminNotes.
// It reports false, and changes nothing, when id is unknown.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status skills.Status, notes *string) bool {
	_, span := telemetry.Start(ctx, "registry.update_status", telemetry.SkillAttr(id), attribute.String("skill.status", string(status)))
	defer span.End()

	updated, observers, ok := r.replace(id, func(s *skills.Skill) {
		s.Status = status
		if notes != nil {
			s.AdminNotes = *notes
		}
	})
	log := logger.G(logger.WithSkill(ctx, id))
	if !ok {
		log.Debug("status update for unknown skill ignored")
		return false
	}
	log.WithField("status", status).Info("skill status updated")

	ev := Event{Kind: EventStatusChanged, Skill: updated, At: r.sched.Now()}
	if notes != nil {
		ev.Notes = *notes
	}
	r.notify(observers, ev)
	return true
}

// IncrementDownloads adds one to the download counter of id. It reports
// false when id is unknown.
func (r *Registry) IncrementDownloads(ctx context.Context, id string) bool {
	_, span := telemetry.Start(ctx, "registry.increment_downloads", telemetry.SkillAttr(id))
	defer span.End()

	updated, observers, ok := r.replace(id, func(s *skills.Skill) {
		s.Downloads++
	})
	if !ok {
		logger.G(logger.WithSkill(ctx, id)).Debug("download for unknown skill ignored")
		return false
	}
	r.notify(observers, Event{Kind: EventDownloaded, Skill: updated, At: r.sched.Now()})
	return true
}

func (r *Registry) applyAutoReject(ctx context.Context, id string) {
	updated, observers, ok := r.replace(id, func(s *skills.Skill) {
		s.Status = skills.StatusRejected
		s.EvaluationScores = r.policy.Result.Clone()
		s.AdminNotes = r.policy.Notes
	})
	log := logger.G(logger.WithSkill(ctx, id))
	if !ok {
		log.Debug("auto-rejection target no longer exists")
		return
	}
	log.WithFields(logrus.Fields{"trigger": r.policy.Trigger, "overall": updated.EvaluationScores.Overall()}).Info("skill auto-rejected")
	r.notify(observers, Event{Kind: EventAutoRejected, Skill: updated, Notes: r.policy.Notes, At: r.sched.Now()})
}

// replace applies mutate to a copy of the record with id and installs a new
// collection holding it.
func (r *Registry) replace(id string, mutate func(*skills.Skill)) (skills.Skill, []Observer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return skills.Skill{}, nil, false
	}
	rec := r.skills[idx].Clone()
	mutate(&rec)

	next := make([]skills.Skill, len(r.skills))
	copy(next, r.skills)
	next[idx] = rec
	r.skills = next
	return rec.Clone(), r.observersLocked(), true
}

func (r *Registry) indexLocked(id string) int {
	for i := range r.skills {
		if r.skills[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the skill with id.
func (r *Registry) Get(id string) (skills.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return skills.Skill{}, false
	}
	return r.skills[idx].Clone(), true
}

// Skills returns a copy of the collection, newest submission first.
func (r *Registry) Skills() []skills.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.skills)
}

// Len returns the number of stored skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Role returns the current viewer role.
func (r *Registry) Role() skills.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role
}

// SetRole switches the viewer role.
func (r *Registry) SetRole(ctx context.Context, role skills.Role) {
	r.mu.Lock()
	changed := r.role != role
	r.role = role
	observers := r.observersLocked()
	r.mu.Unlock()

	if !changed {
		return
	}
	logger.G(ctx).WithField("role", role).Info("viewer role changed")
	r.notify(observers, Event{Kind: EventRoleChanged, Role: role, At: r.sched.Now()})
}

// PendingAutoRejects returns the number of scheduled auto-rejections.
func (r *Registry) PendingAutoRejects() int {
	r.mu.RLock()
	timers := r.timers
	r.mu.RUnlock()
	return timers.Len()
}

// Reset restores the initial collection and role and cancels every pending
// auto-rejection.
func (r *Registry) Reset(ctx context.Context) {
	r.mu.Lock()
	old := r.timers
	r.timers = scheduler.NewGroup(r.sched)
	r.skills = cloneAll(r.initial)
	r.role = r.defaultRole
	observers := r.observersLocked()
	r.mu.Unlock()

	drained := old.Stop()
	logger.G(ctx).WithField("cancelled_timers", drained).Info("registry reset")
	r.notify(observers, Event{Kind: EventReset, Role: r.defaultRole, At: r.sched.Now()})
}

// Close cancels every pending auto-rejection. The registry stays readable
// but no timer will fire afterwards.
func (r *Registry) Close() {
	r.mu.RLock()
	timers := r.timers
	r.mu.RUnlock()

	if n := timers.Stop(); n > 0 {
		logger.G(context.Background()).WithField("cancelled_timers", n).Debug("registry closed with pending auto-rejections")
	}
}

// Subscribe registers o until the returned function is called.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.observers = append(r.observers, subscription{id: id, o: o})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			next := make([]subscription, 0, len(r.observers))
			for _, sub := range r.observers {
				if sub.id != id {
					next = append(next, sub)
				}
			}
			r.observers = next
		})
	}
}

func (r *Registry) observersLocked() []Observer {
	if len(r.observers) == 0 {
		return nil
	}
	out := make([]Observer, len(r.observers))
	for i, sub := range r.observers {
		out[i] = sub.o
	}
	return out
}

func (r *Registry) notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.Notify(e)
	}
}

func cloneAll(list []skills.Skill) []skills.Skill {
	out := make([]skills.Skill, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out
}
