package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/client"
	"github.com/jingkaihe/skillhub/pkg/config"
	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/reviewlog"
	"github.com/jingkaihe/skillhub/pkg/seed"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// errAdminRequired is returned when a review is attempted as an employee.
var errAdminRequired = errors.New("admin role required, switch with \"skillhub role admin\" or --role admin")

// newRegistry builds a registry from the seed catalog, schema, auto-reject
// policy and role in c.
func newRegistry(c config.Config, opts ...registry.Option) (*registry.Registry, error) {
	schema := c.EvaluationSchema()
	list, err := seed.Load(c.SeedFile, schema)
	if err != nil {
		return nil, err
	}

	base := []registry.Option{
		registry.WithSchema(schema),
		registry.WithInitialSkills(list),
		registry.WithDefaultRole(c.DefaultRole()),
	}
	if policy, ok := c.AutoReject.Policy(schema); ok {
		base = append(base, registry.WithAutoRejectPolicy(policy))
	} else {
		base = append(base, registry.WithoutAutoReject())
	}
	return registry.New(append(base, opts...)...)
}

// openReviewLog opens the configured review log. It returns nil when no
// path is configured.
func openReviewLog(ctx context.Context, c config.Config) (*reviewlog.Store, error) {
	if c.ReviewLog.Path == "" {
		return nil, nil
	}
	return reviewlog.Open(ctx, c.ReviewLog.Path)
}

// newImporter builds an importer from the import settings in c.
func newImporter(ctx context.Context, c config.Config) (*importer.Importer, error) {
	ic := c.Import
	return importer.New(
		importer.WithHTTPClient(&http.Client{Timeout: ic.Timeout}),
		importer.WithGitHubToken(ctx, ic.GitHubToken),
		importer.WithClawHubAPI(ic.ClawHubAPI),
		importer.WithProxy(ic.Proxy),
		importer.WithRetry(ic.Attempts, ic.Delay),
		importer.WithMaxBytes(ic.MaxBytes),
	)
}

// loadStages returns the configured stage table, or the built-in one.
func loadStages(c config.Config) ([]pipeline.Stage, error) {
	if c.StagesFile == "" {
		return pipeline.DefaultStages(), nil
	}
	return pipeline.LoadStages(c.StagesFile)
}

// newClient dials the configured server URL.
func newClient() (*client.Client, error) {
	return client.New(cfg.Server.URL, client.WithRetry(cfg.Import.Attempts, cfg.Import.Delay))
}

// catalog is the set of skill operations CLI commands need. It is served by
// an in-process registry or by a running server.
type catalog interface {
	Marketplace(ctx context.Context, q registry.Query) ([]skills.Skill, error)
	Admin(ctx context.Context, status string) ([]skills.Skill, registry.Counts, error)
	Get(ctx context.Context, id string) (skills.Skill, error)
	Submit(ctx context.Context, req submission.Request) (skills.Skill, error)
	UpdateStatus(ctx context.Context, id string, status skills.Status, notes *string) (skills.Skill, error)
	Role(ctx context.Context) (skills.Role, error)
	SetRole(ctx context.Context, role skills.Role) error
	History(ctx context.Context, id string) ([]reviewlog.Entry, error)
	Stages(ctx context.Context) ([]pipeline.Stage, error)
	Close() error
}

// openCatalog dials the server when remote is set and otherwise builds an
// in-process catalog. Changes to an in-process catalog last only as long as
// the command.
func openCatalog(ctx context.Context, remote bool) (catalog, error) {
	if remote {
		c, err := newClient()
		if err != nil {
			return nil, err
		}
		logger.G(ctx).WithField("server", cfg.Server.URL).Debug("using remote catalog")
		return &remoteCatalog{client: c}, nil
	}

	stages, err := loadStages(cfg)
	if err != nil {
		return nil, err
	}
	store, err := openReviewLog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var opts []registry.Option
	if store != nil {
		opts = append(opts, registry.WithObserver(store))
	}
	reg, err := newRegistry(cfg, opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return &localCatalog{registry: reg, stages: stages, reviews: store}, nil
}

type localCatalog struct {
	registry *registry.Registry
	stages   []pipeline.Stage
	reviews  *reviewlog.Store
}

func (l *localCatalog) Marketplace(_ context.Context, q registry.Query) ([]skills.Skill, error) {
	return l.registry.List(registry.MarketplaceQuery(q.Search, q.Category, q.Tag, q.Sort))
}

func (l *localCatalog) Admin(_ context.Context, status string) ([]skills.Skill, registry.Counts, error) {
	list, err := l.registry.List(registry.AdminQuery(status))
	return list, l.registry.Counts(), err
}

func (l *localCatalog) Get(_ context.Context, id string) (skills.Skill, error) {
	s, ok := l.registry.Get(id)
	if !ok {
		return skills.Skill{}, client.ErrNotFound
	}
	return s, nil
}

func (l *localCatalog) Submit(ctx context.Context, req submission.Request) (skills.Skill, error) {
	draft, err := req.Draft(l.registry.Schema())
	if err != nil {
		return skills.Skill{}, err
	}
	return l.registry.Add(ctx, draft), nil
}

func (l *localCatalog) UpdateStatus(ctx context.Context, id string, status skills.Status, notes *string) (skills.Skill, error) {
	if l.registry.Role() != skills.RoleAdmin {
		return skills.Skill{}, errAdminRequired
	}
	if !status.Valid() {
		return skills.Skill{}, errors.Errorf("invalid status %q", status)
	}
	if !l.registry.UpdateStatus(ctx, id, status, notes) {
		return skills.Skill{}, client.ErrNotFound
	}
	return l.Get(ctx, id)
}

func (l *localCatalog) Role(context.Context) (skills.Role, error) {
	return l.registry.Role(), nil
}

func (l *localCatalog) SetRole(ctx context.Context, role skills.Role) error {
	l.registry.SetRole(ctx, role)
	return nil
}

func (l *localCatalog) History(ctx context.Context, id string) ([]reviewlog.Entry, error) {
	if l.reviews == nil {
		return nil, errors.New("no review log configured, set review_log.path")
	}
	return l.reviews.History(ctx, id)
}

func (l *localCatalog) Stages(context.Context) ([]pipeline.Stage, error) {
	return l.stages, nil
}

func (l *localCatalog) Close() error {
	l.registry.Close()
	if l.reviews != nil {
		return l.reviews.Close()
	}
	return nil
}

type remoteCatalog struct {
	client *client.Client
}

func (r *remoteCatalog) Marketplace(ctx context.Context, q registry.Query) ([]skills.Skill, error) {
	resp, err := r.client.Marketplace(ctx, q)
	return resp.Skills, err
}

func (r *remoteCatalog) Admin(ctx context.Context, status string) ([]skills.Skill, registry.Counts, error) {
	resp, err := r.client.Admin(ctx, status)
	if err != nil {
		return nil, registry.Counts{}, err
	}
	var counts registry.Counts
	if resp.Counts != nil {
		counts = *resp.Counts
	}
	return resp.Skills, counts, nil
}

func (r *remoteCatalog) Get(ctx context.Context, id string) (skills.Skill, error) {
	return r.client.Get(ctx, id)
}

func (r *remoteCatalog) Submit(ctx context.Context, req submission.Request) (skills.Skill, error) {
	return r.client.Submit(ctx, req)
}

func (r *remoteCatalog) UpdateStatus(ctx context.Context, id string, status skills.Status, notes *string) (skills.Skill, error) {
	s, err := r.client.UpdateStatus(ctx, id, status, notes)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
		return s, errAdminRequired
	}
	return s, err
}

func (r *remoteCatalog) Role(ctx context.Context) (skills.Role, error) {
	return r.client.Role(ctx)
}

func (r *remoteCatalog) SetRole(ctx context.Context, role skills.Role) error {
	return r.client.SetRole(ctx, role)
}

func (r *remoteCatalog) History(ctx context.Context, id string) ([]reviewlog.Entry, error) {
	return r.client.History(ctx, id)
}

func (r *remoteCatalog) Stages(ctx context.Context) ([]pipeline.Stage, error) {
	return r.client.Stages(ctx)
}

func (r *remoteCatalog) Close() error { return nil }
