package webui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/reviewlog"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type mockImporter struct {
	result *importer.Result
	err    error
	calls  []string
}

func (m *mockImporter) Import(_ context.Context, raw string) (*importer.Result, error) {
	m.calls = append(m.calls, raw)
	return m.result, m.err
}

type mockReviewLog struct {
	history map[string][]reviewlog.Entry
	recent  []reviewlog.Entry
	limit   int
	total   int
	err     error
}

func (m *mockReviewLog) History(_ context.Context, id string) ([]reviewlog.Entry, error) {
	return m.history[id], m.err
}

func (m *mockReviewLog) Recent(_ context.Context, limit int) ([]reviewlog.Entry, error) {
	m.limit = limit
	return m.recent, m.err
}

func (m *mockReviewLog) Count(context.Context) (int, error) {
	return m.total, m.err
}

func catalog() []skills.Skill {
	mk := func(id, title string, status skills.Status, downloads int, tags ...string) skills.Skill {
		return skills.Skill{
			ID:               id,
			Title:            title,
			Author:           "Alice",
			Version:          "1.0.0",
			Description:      title + " description",
			Tags:             tags,
			Category:         "Testing",
			MarkdownContent:  "# " + title,
			Status:           status,
			EvaluationScores: evaluation.Default().Zero(),
			Downloads:        downloads,
			SubmissionMethod: skills.MethodTemplate,
			SubmittedAt:      epoch.Add(-time.Hour),
		}
	}
	return []skills.Skill{
		mk("approved-1", "Unit Test Writer", skills.StatusApproved, 10, "go", "testing"),
		mk("approved-2", "Flaky Test Hunter", skills.StatusApproved, 50, "ci"),
		mk("pending-1", "Load Test Planner", skills.StatusPending, 0),
		mk("rejected-1", "Mock Everything", skills.StatusRejected, 0),
	}
}

func shortStages() []pipeline.Stage {
	return []pipeline.Stage{
		{ID: "parse", Label: "Parse", SubSteps: []string{"Reading..."}, Duration: time.Second},
		{ID: "score", Label: "Score", SubSteps: []string{"Scoring...", "Summing..."}, Duration: 2 * time.Second},
	}
}

type fixture struct {
	server   *Server
	registry *registry.Registry
	clock    *scheduler.Manual
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := scheduler.NewManual(epoch)
	reg, err := registry.New(
		registry.WithScheduler(clock),
		registry.WithInitialSkills(catalog()),
	)
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	base := []Option{
		WithScheduler(clock),
		WithStages(pipeline.NewTable(shortStages())),
		WithHeartbeat(0),
	}
	s, err := NewServer(&ServerConfig{Host: "localhost", Port: 8080, CORSOrigins: []string{"*"}}, reg, append(base, opts...)...)
	require.NoError(t, err)
	return &fixture{server: s, registry: reg, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func ids(list []skills.Skill) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestNewServer_Validation(t *testing.T) {
	reg, err := registry.New()
	require.NoError(t, err)
	defer reg.Close()

	tests := []struct {
		name   string
		config *ServerConfig
		reg    *registry.Registry
		opts   []Option
		errMsg string
	}{
		{name: "empty host", config: &ServerConfig{Port: 8080}, reg: reg, errMsg: "host cannot be empty"},
		{name: "bad port", config: &ServerConfig{Host: "localhost", Port: 70000}, reg: reg, errMsg: "port must be between"},
		{name: "nil registry", config: &ServerConfig{Host: "localhost", Port: 8080}, errMsg: "registry must not be nil"},
		{name: "negative heartbeat", config: &ServerConfig{Host: "localhost", Port: 8080}, reg: reg, opts: []Option{WithHeartbeat(-time.Second)}, errMsg: "heartbeat must not be negative"},
		{name: "nil stages", config: &ServerConfig{Host: "localhost", Port: 8080}, reg: reg, opts: []Option{WithStages(nil)}, errMsg: "stage table must not be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.config, tt.reg, tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	c := &ServerConfig{Host: "0.0.0.0", Port: 9090}
	assert.Equal(t, "0.0.0.0:9090", c.Addr())
}

func TestListSkills_Marketplace(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "popular by default", query: "", want: []string{"approved-2", "approved-1"}},
		{name: "search matches title", query: "?q=unit", want: []string{"approved-1"}},
		{name: "tag glob", query: "?tag=te*", want: []string{"approved-1"}},
		{name: "category", query: "?category=Security", want: []string{}},
		{name: "pending never listed", query: "?q=load", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/skills"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[ListResponse](t, w)
			assert.Equal(t, tt.want, ids(resp.Skills))
			assert.Equal(t, len(tt.want), resp.Total)
			assert.Nil(t, resp.Counts)
		})
	}
}

func TestListSkills_Admin(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/skills?view=admin&status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ListResponse](t, w)
	assert.Equal(t, []string{"pending-1"}, ids(resp.Skills))
	require.NotNil(t, resp.Counts)
	assert.Equal(t, registry.Counts{All: 4, Pending: 1, Approved: 2, Rejected: 1}, *resp.Counts)

	w = f.do(t, http.MethodGet, "/api/skills?view=admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[ListResponse](t, w).Skills, 4)
}

func TestListSkills_BadRequests(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"?view=nope", "?sort=sideways", "?view=admin&status=archived"} {
		t.Run(q, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/skills"+q, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[errorResponse](t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
		})
	}
}

func TestSubmitSkill(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/skills", map[string]any{
		"method": "template",
		"template": map[string]any{
			"title":    "Changelog Writer",
			"goal":     "Summarise merged pull requests",
			"author":   "Bob",
			"category": "Documentation",
			"tags":     "docs, , release",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[skills.Skill](t, w)
	assert.Equal(t, "Changelog Writer", created.Title)
	assert.Equal(t, skills.StatusPending, created.Status)
	assert.Equal(t, []string{"docs", "release"}, created.Tags)
	assert.Equal(t, "1.0.0", created.Version)
	assert.Equal(t, 0, created.EvaluationScores.Overall())
	assert.Equal(t, epoch, created.SubmittedAt)

	got, ok := f.registry.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.ID, f.registry.Skills()[0].ID)
}

func TestSubmitSkill_ValidationFields(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/skills", map[string]any{
		"method": "upload",
		"upload": map[string]any{"title": "No Content", "category": "Nope"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[errorResponse](t, w)
	assert.NotEmpty(t, resp.Fields)
	assert.Equal(t, 4, f.registry.Len())
}

func TestSubmitSkill_UnknownField(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/skills", map[string]any{"method": "upload", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitSkill_AutoRejectsTrigger(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/skills", map[string]any{
		"method": "upload",
		"upload": map[string]any{
			"title":    "JIRA Sync",
			"content":  "# JIRA Sync",
			"author":   "Eve",
			"category": "Communication",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[skills.Skill](t, w).ID

	f.clock.Advance(registry.DefaultAutoRejectDelay)

	w = f.do(t, http.MethodGet, "/api/skills/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[skills.Skill](t, w)
	assert.Equal(t, skills.StatusRejected, got.Status)
	assert.Equal(t, registry.DefaultAutoRejectNotes, got.AdminNotes)
}

func TestGetSkill_NotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/skills/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/skills/pending-1/status", map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	f.registry.SetRole(context.Background(), skills.RoleAdmin)

	w = f.do(t, http.MethodPost, "/api/skills/pending-1/status", map[string]any{"status": "approved", "notes": "LGTM"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[skills.Skill](t, w)
	assert.Equal(t, skills.StatusApproved, got.Status)
	assert.Equal(t, "LGTM", got.AdminNotes)

	w = f.do(t, http.MethodPost, "/api/skills/pending-1/status", map[string]any{"status": "rejected"})
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[skills.Skill](t, w)
	assert.Equal(t, skills.StatusRejected, got.Status)
	assert.Equal(t, "LGTM", got.AdminNotes, "absent notes keep the previous ones")

	w = f.do(t, http.MethodPost, "/api/skills/pending-1/status", map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/skills/missing/status", map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/skills/approved-1/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 11, decode[skills.Skill](t, w).Downloads)

	w = f.do(t, http.MethodPost, "/api/skills/missing/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSkillDocument(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/skills/approved-1/skill.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "---\n"))
	assert.Contains(t, body, "name: Unit Test Writer")
	assert.Contains(t, body, "# Unit Test Writer")
}

func TestDiff(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/skills/approved-1/diff?against=approved-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "--- approved-2@v1.0.0")
	assert.Contains(t, body, "+++ approved-1@v1.0.0")
	assert.Contains(t, body, "+# Unit Test Writer")

	w = f.do(t, http.MethodGet, "/api/skills/approved-1/diff", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/skills/approved-1/diff?against=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPipelineSnapshot(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/skills/approved-1/pipeline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[pipeline.Snapshot](t, w)
	assert.True(t, snap.Done)
	require.Len(t, snap.Stages, 2)
	for _, st := range snap.Stages {
		assert.Equal(t, pipeline.StageComplete, st.Status)
	}
	assert.Equal(t, pipeline.HeaderLine("Parse"), snap.Log[0])

	w = f.do(t, http.MethodGet, "/api/skills/pending-1/pipeline?variant=full", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[pipeline.Snapshot](t, w)
	assert.False(t, snap.Done)
	assert.Equal(t, -1, snap.ActiveStage)
	assert.Empty(t, snap.Log)
	assert.Equal(t, 0, f.clock.Pending(), "snapshots do not leave timers behind")

	w = f.do(t, http.MethodGet, "/api/skills/pending-1/pipeline?variant=compact", nil)
	require.Equal(t, http.StatusOK, w.Code)
	compact := decode[pipeline.CompactSnapshot](t, w)
	assert.True(t, compact.Pending)
	assert.Equal(t, 2, compact.StageCount)

	w = f.do(t, http.MethodGet, "/api/skills/pending-1/pipeline?variant=wide", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 128)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func next(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func openStream(t *testing.T, f *fixture, path string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp, cancel
}

func TestPipelineStream_ReviewedSkillIsTerminal(t *testing.T) {
	f := newFixture(t)
	resp, cancel := openStream(t, f, "/api/skills/approved-1/pipeline/stream")
	defer cancel()
	events := readEvents(t, resp)

	first := next(t, events)
	assert.Equal(t, EventSnapshot, first.name)

	last := next(t, events)
	assert.Equal(t, EventDone, last.name)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal([]byte(last.data), &snap))
	assert.True(t, snap.Done)
}

func TestPipelineStream_AnimatesPendingSkill(t *testing.T) {
	f := newFixture(t)
	resp, cancel := openStream(t, f, "/api/skills/pending-1/pipeline/stream")
	defer cancel()
	events := readEvents(t, resp)

	first := next(t, events)
	require.Equal(t, EventSnapshot, first.name)

	require.Eventually(t, func() bool { return f.clock.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)
	f.clock.Advance(pipeline.TotalDuration(shortStages()))

	var final pipeline.Snapshot
	for {
		ev := next(t, events)
		if ev.name == EventDone {
			require.NoError(t, json.Unmarshal([]byte(ev.data), &final))
			break
		}
	}
	assert.True(t, final.Done)
	assert.Empty(t, final.Failure)
	assert.Equal(t, []string{
		pipeline.HeaderLine("Parse"),
		pipeline.DoneLine("Reading..."),
		pipeline.HeaderLine("Score"),
		pipeline.DoneLine("Scoring..."),
		pipeline.DoneLine("Summing..."),
	}, final.Log)
}

func TestPipelineStream_RejectionFailsRun(t *testing.T) {
	f := newFixture(t)
	resp, cancel := openStream(t, f, "/api/skills/pending-1/pipeline/stream")
	defer cancel()
	events := readEvents(t, resp)

	next(t, events)
	require.Eventually(t, func() bool { return f.clock.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)

	notes := "Unsafe shell usage"
	require.True(t, f.registry.UpdateStatus(context.Background(), "pending-1", skills.StatusRejected, &notes))

	var final pipeline.Snapshot
	for {
		ev := next(t, events)
		if ev.name == EventDone {
			require.NoError(t, json.Unmarshal([]byte(ev.data), &final))
			break
		}
	}
	assert.Equal(t, notes, final.Failure)
	assert.Equal(t, pipeline.StageFailed, final.Stages[0].Status)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestPipelineStream_DisconnectStopsRun(t *testing.T) {
	f := newFixture(t)
	resp, cancel := openStream(t, f, "/api/skills/pending-1/pipeline/stream")
	events := readEvents(t, resp)

	next(t, events)
	require.Eventually(t, func() bool { return f.clock.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return f.clock.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestEvents_StreamsRegistryMutations(t *testing.T) {
	f := newFixture(t)
	resp, cancel := openStream(t, f, "/api/events")
	defer cancel()
	events := readEvents(t, resp)

	// The handler subscribes after writing headers; retry until it sees one.
	require.Eventually(t, func() bool {
		f.registry.IncrementDownloads(context.Background(), "approved-1")
		select {
		case ev := <-events:
			return ev.name == string(registry.EventDownloaded)
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	f.registry.SetRole(context.Background(), skills.RoleAdmin)
	for {
		ev := next(t, events)
		if ev.name == string(registry.EventRoleChanged) {
			var e registry.Event
			require.NoError(t, json.Unmarshal([]byte(ev.data), &e))
			assert.Equal(t, skills.RoleAdmin, e.Role)
			return
		}
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, registry.Counts{All: 4, Pending: 1, Approved: 2, Rejected: 1}, decode[registry.Counts](t, w))
}

func TestRole(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/role", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, skills.RoleEmployee, decode[RoleBody](t, w).Role)

	w = f.do(t, http.MethodPut, "/api/role", RoleBody{Role: "Admin"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, skills.RoleAdmin, decode[RoleBody](t, w).Role)
	assert.Equal(t, skills.RoleAdmin, f.registry.Role())

	w = f.do(t, http.MethodPut, "/api/role", RoleBody{Role: "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport(t *testing.T) {
	im := &mockImporter{result: &importer.Result{
		Source:  importer.SourceGitHub,
		URL:     "https://github.com/acme/skills/blob/main/SKILL.md",
		Title:   "Release Notes",
		Version: "1.0.0",
		Tags:    []string{"docs", "release"},
		Content: "# Release Notes",
	}}
	f := newFixture(t, WithImporter(im))

	w := f.do(t, http.MethodPost, "/api/import", ImportRequest{URL: "  https://github.com/acme/skills/blob/main/SKILL.md "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ImportResponse](t, w)
	assert.Equal(t, "Release Notes", resp.Form.Title)
	assert.Equal(t, "docs, release", resp.Form.Tags)
	assert.Equal(t, []string{"https://github.com/acme/skills/blob/main/SKILL.md"}, im.calls)

	w = f.do(t, http.MethodPost, "/api/import", ImportRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport_FailureIsGeneric(t *testing.T) {
	im := &mockImporter{err: errors.New("dial tcp: connection refused")}
	f := newFixture(t, WithImporter(im))

	w := f.do(t, http.MethodPost, "/api/import", ImportRequest{URL: "https://example.com/SKILL.md"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, importer.FailureMessage, decode[errorResponse](t, w).Error)
}

func TestImport_NotConfigured(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/import", ImportRequest{URL: "https://example.com/SKILL.md"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHistoryAndActivity(t *testing.T) {
	entry := reviewlog.Entry{ID: 1, Kind: registry.EventAdded, SkillID: "pending-1", Actor: reviewlog.ActorSubmitter}
	logs := &mockReviewLog{
		history: map[string][]reviewlog.Entry{"pending-1": {entry}},
		recent:  []reviewlog.Entry{entry},
		total:   7,
	}
	f := newFixture(t, WithReviewLog(logs))

	w := f.do(t, http.MethodGet, "/api/skills/pending-1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		SkillID string            `json:"skillId"`
		Entries []reviewlog.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, "pending-1", history.SkillID)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, reviewlog.ActorSubmitter, history.Entries[0].Actor)

	w = f.do(t, http.MethodGet, "/api/skills/unknown/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"skillId":"unknown","entries":[]}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/activity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reviewlog.DefaultRecentLimit, logs.limit)
	var activity struct {
		Total   int               `json:"total"`
		Entries []reviewlog.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activity))
	assert.Equal(t, 7, activity.Total)
	assert.Len(t, activity.Entries, 1)

	w = f.do(t, http.MethodGet, "/api/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, logs.limit)

	for _, bad := range []string{"0", "abc", "100000"} {
		w = f.do(t, http.MethodGet, "/api/activity?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	logs.err = errors.New("disk full")
	w = f.do(t, http.MethodGet, "/api/activity", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHistory_NotConfigured(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/skills/pending-1/history", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	w = f.do(t, http.MethodGet, "/api/activity", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStaticLists(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, skills.Categories, decode[[]string](t, w))

	w = f.do(t, http.MethodGet, "/api/stages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stages struct {
		Stages          []map[string]any `json:"stages"`
		TotalDurationMS int64            `json:"totalDurationMs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	assert.Len(t, stages.Stages, 2)
	assert.Equal(t, int64(3000), stages.TotalDurationMS)

	w = f.do(t, http.MethodGet, "/api/schema/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"method"`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	h := decode[Health](t, w)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 4, h.Skills)
	assert.Equal(t, 0, h.PendingAutoRejects)
	assert.NotEmpty(t, h.Version.GoVersion)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{name: "wildcard", origins: []string{"*"}, origin: "http://a.example", want: "*"},
		{name: "exact match", origins: []string{"http://a.example"}, origin: "http://a.example", want: "http://a.example"},
		{name: "no match", origins: []string{"http://a.example"}, origin: "http://b.example", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.server.config.CORSOrigins = tt.origins

			req := httptest.NewRequest(http.MethodOptions, "/api/skills", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestResponseWriter_RecordsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	rw.Flush()
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.True(t, rec.Flushed)
}

func ExampleServerConfig_Addr() {
	c := &ServerConfig{Host: "localhost", Port: 8080}
	fmt.Println(c.Addr())
	// Output: localhost:8080
}
