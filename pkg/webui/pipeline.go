package webui

import (
	"net/http"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// Pipeline variants accepted by GET /api/skills/{id}/pipeline.
const (
	VariantFull    = "full"
	VariantCompact = "compact"
)

// Names of the events sent on a pipeline stream.
const (
	EventSnapshot = "snapshot"
	EventDone     = "done"
)

// snapshotBuffer bounds how many snapshots a slow stream client may lag
// behind. Intermediate snapshots are dropped beyond that; the final one is
// always delivered.
const snapshotBuffer = 32

// handlePipelineSnapshot handles GET /api/skills/{id}/pipeline. Pending
// skills get the state of a run that has not started yet.
func (s *Server) handlePipelineSnapshot(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.lookup(w, r)
	if !ok {
		return
	}

	stages := s.stages.Stages()
	switch variant := r.URL.Query().Get("variant"); variant {
	case "", VariantFull:
		run := pipeline.NewFull(stages, skill.Status, s.sched)
		defer run.Stop()
		s.writeJSONResponse(w, r, http.StatusOK, run.Snapshot())
	case VariantCompact:
		c := pipeline.NewCompact(skill.EvaluationScores, skill.Status, s.sched, len(stages),
			pipeline.WithCompactSchema(s.registry.Schema()))
		defer c.Stop()
		s.writeJSONResponse(w, r, http.StatusOK, c.Snapshot())
	default:
		s.writeErrorResponse(w, r, http.StatusBadRequest, "unknown variant "+variant, nil)
	}
}

// handlePipelineStream handles GET /api/skills/{id}/pipeline/stream. Each
// connection animates its own run, which is stopped when the client goes
// away. A skill rejected while its run is animating fails the run.
func (s *Server) handlePipelineStream(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx := logger.WithSkill(r.Context(), skill.ID)
	log := logger.G(ctx)

	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "streaming not supported", err)
		return
	}

	run := pipeline.NewFull(s.stages.Stages(), skill.Status, s.sched)
	defer run.Stop()

	snaps := make(chan pipeline.Snapshot, snapshotBuffer)
	unsubscribe := run.Subscribe(func(snap pipeline.Snapshot) {
		select {
		case snaps <- snap:
		default:
		}
	})
	defer unsubscribe()

	unwatch := s.registry.Subscribe(registry.ObserverFunc(func(e registry.Event) {
		if e.Skill.ID != skill.ID || e.Skill.Status != skills.StatusRejected {
			return
		}
		if e.Kind == registry.EventAutoRejected || e.Kind == registry.EventStatusChanged {
			reason := "Rejected"
			if e.Notes != "" {
				reason = e.Notes
			}
			run.Fail(reason)
		}
	}))
	defer unwatch()

	if err := sse.writeEvent(EventSnapshot, run.Snapshot()); err != nil {
		log.WithError(err).Debug("pipeline stream closed")
		return
	}
	run.Start()

	for {
		select {
		case <-ctx.Done():
			log.Debug("pipeline stream client disconnected")
			return
		case snap := <-snaps:
			if err := sse.writeEvent(EventSnapshot, snap); err != nil {
				log.WithError(err).Debug("pipeline stream closed")
				return
			}
		case <-run.Done():
			if err := sse.writeEvent(EventDone, run.Snapshot()); err != nil {
				log.WithError(err).Debug("pipeline stream closed")
			}
			return
		}
	}
}

// handleStages handles GET /api/stages.
func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	stages := s.stages.Stages()
	s.writeJSONResponse(w, r, http.StatusOK, map[string]any{
		"stages":          stages,
		"totalDurationMs": pipeline.TotalDuration(stages).Milliseconds(),
	})
}
