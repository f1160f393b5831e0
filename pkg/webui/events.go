package webui

import (
	"net/http"
	"sync"
	"time"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/registry"
)

const eventBuffer = 64

// handleEvents handles GET /api/events, streaming registry mutations until
// the client disconnects. A client that falls too far behind is dropped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.G(ctx)

	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "streaming not supported", err)
		return
	}

	events := make(chan registry.Event, eventBuffer)
	overflow := make(chan struct{})
	var closeOverflow sync.Once
	unsubscribe := s.registry.Subscribe(registry.ObserverFunc(func(e registry.Event) {
		select {
		case events <- e:
		default:
			closeOverflow.Do(func() { close(overflow) })
		}
	}))
	defer unsubscribe()

	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			log.Warn("event stream client too slow, closing")
			return
		case e := <-events:
			if err := sse.writeEvent(string(e.Kind), e); err != nil {
				log.WithError(err).Debug("event stream closed")
				return
			}
		case <-heartbeat:
			if err := sse.writeComment("keep-alive"); err != nil {
				log.WithError(err).Debug("event stream closed")
				return
			}
		}
	}
}
