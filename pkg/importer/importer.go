// Package importer fetches skill documents from remote sources and local
// directories so they can be submitted through the upload form.
//
// Supported remote sources are ClawHub skill pages, GitHub blob URLs, gists
// and any URL that serves markdown (or HTML, which is converted).
package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/avast/retry-go/v4"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/telemetry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

const (
	DefaultClawHubAPI = "https://wry-manatee-359.convex.site/api/v1"
	DefaultProxy      = "https://corsproxy.io/?"

	// FailureMessage is the single message shown to users for any failed
	// import.
	FailureMessage = "Failed to import. Check the URL and try again. Supported: ClawHub URLs, GitHub file URLs, or raw markdown URLs."
)

// Client defaults, overridable through options.
const (
	DefaultAttempts   uint  = 3
	DefaultMaxBytes   int64 = 5 << 20
	DefaultRetryDelay       = 200 * time.Millisecond
	DefaultTimeout          = 30 * time.Second
)

var (
	clawhubPattern = regexp.MustCompile(`^https?://clawhub\.ai/([^/]+)/([^/]+)/?$`)
	githubPattern  = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/blob/(.+)$`)
	gistPattern    = regexp.MustCompile(`^https?://gist\.github\.com/([^/]+)/([a-f0-9]+)/?$`)
)

// Source names where an import came from.
type Source string

const (
	SourceClawHub Source = "clawhub"
	SourceGitHub  Source = "github"
	SourceGist    Source = "gist"
	SourceURL     Source = "url"
)

// Target is a resolved import location.
type Target struct {
	Source Source
	// URL is the address content is fetched from.
	URL string
	// Slug is set for ClawHub targets.
	Slug string
}

// Resolve classifies raw and rewrites GitHub and gist page URLs to their raw
// content URLs.
func Resolve(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, errors.New("url is empty")
	}
	if m := clawhubPattern.FindStringSubmatch(raw); m != nil {
		return Target{Source: SourceClawHub, URL: raw, Slug: m[2]}, nil
	}
	if m := githubPattern.FindStringSubmatch(raw); m != nil {
		return Target{Source: SourceGitHub, URL: fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", m[1], m[2], m[3])}, nil
	}
	if m := gistPattern.FindStringSubmatch(raw); m != nil {
		return Target{Source: SourceGist, URL: fmt.Sprintf("https://gist.githubusercontent.com/%s/%s/raw", m[1], m[2])}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Target{}, errors.Errorf("unsupported url %q", raw)
	}
	return Target{Source: SourceURL, URL: raw}, nil
}

// Result is an imported skill, ready to prefill an upload form.
type Result struct {
	Source      Source   `json:"source"`
	URL         string   `json:"url"`
	FetchedFrom string   `json:"fetchedFrom"`
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags"`
	Content     string   `json:"content"`
	// Synthesized is true when the document was built from metadata because
	// the archive had no SKILL.md.
	Synthesized bool `json:"synthesized,omitempty"`
}

// Form converts the result into an upload form. Fields the source did not
// provide stay empty for the submitter to fill in.
func (r *Result) Form() submission.UploadForm {
	f := submission.UploadForm{
		Title:       r.Title,
		Content:     r.Content,
		Version:     r.Version,
		Author:      r.Author,
		Description: r.Description,
		Tags:        strings.Join(r.Tags, ", "),
	}
	if skills.IsCategory(r.Category) {
		f.Category = r.Category
	}
	return f
}

// Error is returned for every failed import.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to import %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Importer fetches skills. Create it with New.
type Importer struct {
	client       *http.Client
	githubClient *http.Client
	clawhubAPI   string
	proxy        string
	attempts     uint
	delay        time.Duration
	maxBytes     int64
}

// Option configures an Importer.
type Option func(*Importer) error

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(im *Importer) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		im.client = c
		return nil
	}
}

// WithGitHubToken authenticates GitHub and gist fetches, which allows
// importing from private repositories.
func WithGitHubToken(ctx context.Context, token string) Option {
	return func(im *Importer) error {
		if token == "" {
			return nil
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, im.client)
		im.githubClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		return nil
	}
}

// WithClawHubAPI overrides the ClawHub API base URL.
func WithClawHubAPI(base string) Option {
	return func(im *Importer) error {
		im.clawhubAPI = strings.TrimRight(base, "/")
		return nil
	}
}

// WithProxy sets the fallback proxy prefix. The escaped target URL is
// appended to it. An empty prefix disables the fallback.
func WithProxy(prefix string) Option {
	return func(im *Importer) error {
		im.proxy = prefix
		return nil
	}
}

// WithRetry sets how many times a request is attempted and the initial
// backoff between attempts.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(im *Importer) error {
		if attempts == 0 {
			return errors.New("retry attempts must be at least 1")
		}
		im.attempts = attempts
		im.delay = delay
		return nil
	}
}

// WithMaxBytes limits the size of a fetched document or archive.
func WithMaxBytes(n int64) Option {
	return func(im *Importer) error {
		if n <= 0 {
			return errors.New("max bytes must be positive")
		}
		im.maxBytes = n
		return nil
	}
}

// New creates an Importer.
func New(opts ...Option) (*Importer, error) {
	im := &Importer{
		client:     &http.Client{Timeout: DefaultTimeout},
		clawhubAPI: DefaultClawHubAPI,
		proxy:      DefaultProxy,
		attempts:   DefaultAttempts,
		delay:      DefaultRetryDelay,
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		if err := opt(im); err != nil {
			return nil, errors.Wrap(err, "failed to apply importer option")
		}
	}
	return im, nil
}

// Import fetches the skill at raw.
func (im *Importer) Import(ctx context.Context, raw string) (*Result, error) {
	var res *Result
	err := telemetry.WithSpan(ctx, "importer.import", func(ctx context.Context) error {
		target, err := Resolve(raw)
		if err != nil {
			return err
		}
		log := logger.G(ctx).WithFields(map[string]any{"source": target.Source, "url": target.URL})
		log.Info("importing skill")

		if target.Source == SourceClawHub {
			res, err = im.importClawHub(ctx, target)
		} else {
			res, err = im.importDocument(ctx, target)
		}
		if err != nil {
			log.WithError(err).Warn("skill import failed")
		}
		return err
	}, attribute.String("import.url", raw))
	if err != nil {
		return nil, &Error{URL: raw, Err: err}
	}
	return res, nil
}

func (im *Importer) importDocument(ctx context.Context, target Target) (*Result, error) {
	body, contentType, fetchedFrom, err := im.fetch(ctx, target, target.URL)
	if err != nil {
		return nil, err
	}

	text := string(body)
	if isHTML(contentType) {
		converted, err := md.NewConverter("", true, nil).ConvertString(text)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert html to markdown")
		}
		text = converted
	}

	doc, err := ParseDocument(text)
	if err != nil {
		return nil, err
	}
	return &Result{
		Source:      target.Source,
		URL:         target.URL,
		FetchedFrom: fetchedFrom,
		Title:       doc.Title,
		Author:      doc.Author,
		Description: doc.Description,
		Version:     versionOr(doc.Version),
		Category:    doc.Category,
		Tags:        nonNil(doc.Tags),
		Content:     text,
	}, nil
}

type clawhubMeta struct {
	Skill struct {
		DisplayName string `json:"displayName"`
		Summary     string `json:"summary"`
	} `json:"skill"`
	Owner *struct {
		DisplayName string `json:"displayName"`
		Handle      string `json:"handle"`
	} `json:"owner"`
	LatestVersion *struct {
		Version string `json:"version"`
	} `json:"latestVersion"`
}

func (im *Importer) importClawHub(ctx context.Context, target Target) (*Result, error) {
	metaURL := fmt.Sprintf("%s/skills/%s", im.clawhubAPI, url.PathEscape(target.Slug))
	body, _, fetchedFrom, err := im.fetch(ctx, target, metaURL)
	if err != nil {
		return nil, errors.Wrap(err, "skill not found on ClawHub")
	}
	var info clawhubMeta
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrap(err, "invalid ClawHub metadata")
	}

	res := &Result{
		Source:      SourceClawHub,
		URL:         target.URL,
		FetchedFrom: fetchedFrom,
		Title:       info.Skill.DisplayName,
		Description: info.Skill.Summary,
		Version:     submission.DefaultVersion,
		Tags:        []string{},
	}
	if res.Title == "" {
		res.Title = target.Slug
	}
	if info.Owner != nil {
		res.Author = info.Owner.DisplayName
		if res.Author == "" {
			res.Author = info.Owner.Handle
		}
	}
	if info.LatestVersion != nil && info.LatestVersion.Version != "" {
		res.Version = info.LatestVersion.Version
	}

	content, err := im.downloadSkillFile(ctx, target)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("archive download failed, using metadata")
	}
	if content == "" {
		res.Content = fmt.Sprintf("# %s\n\n%s\n\n> Imported from ClawHub. Visit %s for the full SKILL.md content.", info.Skill.DisplayName, info.Skill.Summary, target.URL)
		res.Synthesized = true
		return res, nil
	}

	res.Content = content
	if doc, err := ParseDocument(content); err == nil {
		res.Category = doc.Category
		res.Tags = nonNil(doc.Tags)
	}
	return res, nil
}

// downloadSkillFile returns the SKILL.md of a ClawHub archive, or "" when
// the archive has none.
func (im *Importer) downloadSkillFile(ctx context.Context, target Target) (string, error) {
	downloadURL := fmt.Sprintf("%s/download?slug=%s", im.clawhubAPI, url.QueryEscape(target.Slug))
	data, _, _, err := im.fetch(ctx, target, downloadURL)
	if err != nil {
		return "", err
	}
	return SkillFileFromZip(data, im.maxBytes)
}

// SkillFileFromZip returns the content of SKILL.md at the archive root or,
// failing that, the first file whose name ends in SKILL.md in any case.
// The decompressed entry may not exceed maxBytes.
func SkillFileFromZip(data []byte, maxBytes int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "invalid zip archive")
	}

	var match *zip.File
	for _, f := range zr.File {
		if f.Name == SkillFileName {
			match = f
			break
		}
	}
	if match == nil {
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			ok, _ := doublestar.Match("**/*skill.md", strings.ToLower(f.Name))
			if ok {
				match = f
				break
			}
		}
	}
	if match == nil {
		return "", nil
	}

	rc, err := match.Open()
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", match.Name)
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", match.Name)
	}
	if int64(len(content)) > maxBytes {
		return "", errors.Errorf("%s exceeds %d bytes", match.Name, maxBytes)
	}
	return string(content), nil
}

type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// fetch tries u directly and then through the proxy. It returns the body,
// its content type and the address that answered.
func (im *Importer) fetch(ctx context.Context, target Target, u string) ([]byte, string, string, error) {
	client := im.client
	if im.githubClient != nil && (target.Source == SourceGitHub || target.Source == SourceGist) {
		client = im.githubClient
	}

	body, contentType, err := im.get(ctx, client, u)
	if err == nil {
		return body, contentType, u, nil
	}
	if im.proxy == "" || ctx.Err() != nil {
		return nil, "", "", err
	}

	logger.G(ctx).WithError(err).WithField("url", u).Debug("direct fetch failed, trying proxy")
	proxied := im.proxy + url.QueryEscape(u)
	body, contentType, proxyErr := im.get(ctx, im.client, proxied)
	if proxyErr != nil {
		return nil, "", "", errors.Wrapf(proxyErr, "direct fetch failed (%v), proxy fetch failed", err)
	}
	return body, contentType, proxied, nil
}

func (im *Importer) get(ctx context.Context, client *http.Client, u string) ([]byte, string, error) {
	var body []byte
	var contentType string
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(errors.Wrap(err, "invalid request"))
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return &statusError{URL: u, Code: resp.StatusCode}
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBytes+1))
			if err != nil {
				return err
			}
			if int64(len(data)) > im.maxBytes {
				return retry.Unrecoverable(errors.Errorf("response from %s exceeds %d bytes", u, im.maxBytes))
			}
			body = data
			contentType = resp.Header.Get("Content-Type")
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(im.attempts),
		retry.Delay(im.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Debug("retrying fetch")
		}),
	)
	return body, contentType, err
}

// retryable treats transport failures, throttling and server errors as
// transient.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}

func versionOr(v string) string {
	if v == "" {
		return submission.DefaultVersion
	}
	return v
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
