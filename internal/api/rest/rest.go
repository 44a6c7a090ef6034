package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
)

const maxErrorBody = 512

// TokenSource returns the access token used on the requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher renews the credentials after the server rejected the access token.
type Refresher interface {
	Refresh(ctx context.Context) (*model.Credentials, error)
}

// ClientConfig is the configuration of the REST client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	// Tokens is optional, without it the requests are anonymous.
	Tokens TokenSource
	// Refresher is optional, when set rejected requests are refreshed and retried once.
	Refresher Refresher
	Logger    log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url must be absolute, got %q", c.BaseURL)
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "rest.Client"})

	return nil
}

// Client is the api.Client implementation for the time tracking REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	refresher  Refresher
	logger     log.Logger
}

// NewClient returns a new REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		tokens:     cfg.Tokens,
		refresher:  cfg.Refresher,
		logger:     cfg.Logger,
	}, nil
}

// --- JSON wire types ---

type projectJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type openEntryJSON struct {
	ID        string      `json:"id"`
	Project   projectJSON `json:"project"`
	StartedAt time.Time   `json:"started_at"`
}

type todayEntryJSON struct {
	Project         projectJSON `json:"project"`
	DurationSeconds int64       `json:"duration_seconds"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
}

type taskJSON struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	ReportID      string    `json:"report_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	EffectiveDate time.Time `json:"effective_date"`
}

func (t taskJSON) toModel() model.Task {
	return model.Task{
		ID:            t.ID,
		ProjectID:     t.ProjectID,
		ReportID:      t.ReportID,
		Name:          t.Name,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt.UTC(),
		EffectiveDate: t.EffectiveDate.UTC(),
	}
}

type dailyReportJSON struct {
	Day   string     `json:"day"`
	Tasks []taskJSON `json:"tasks"`
}

type pendingEntryJSON struct {
	EntryID   string `json:"entry_id"`
	ProjectID string `json:"project_id"`
	Date      string `json:"date"`
}

type projectRequestJSON struct {
	ProjectID string `json:"project_id"`
}

type workedJSON struct {
	Worked bool `json:"worked"`
}

type refreshRequestJSON struct {
	RefreshToken string `json:"refresh_token"`
}

type credentialsJSON struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// --- api.Client implementation ---

func (c *Client) OpenEntry(ctx context.Context) (*model.OpenEntry, error) {
	var e *openEntryJSON
	if err := c.do(ctx, http.MethodGet, "/v1/time-entries/open", nil, &e); err != nil {
		return nil, fmt.Errorf("getting open entry: %w", err)
	}

	if e == nil || e.ID == "" {
		return nil, nil
	}

	return &model.OpenEntry{
		ID:        e.ID,
		Project:   model.Project{ID: e.Project.ID, Name: e.Project.Name},
		StartedAt: e.StartedAt,
	}, nil
}

func (c *Client) TodayEntries(ctx context.Context) ([]model.TodayEntry, error) {
	var es []todayEntryJSON
	if err := c.do(ctx, http.MethodGet, "/v1/time-entries/today", nil, &es); err != nil {
		return nil, fmt.Errorf("getting today entries: %w", err)
	}

	entries := make([]model.TodayEntry, 0, len(es))
	for _, e := range es {
		entries = append(entries, model.TodayEntry{
			Project:  model.Project{ID: e.Project.ID, Name: e.Project.Name},
			Duration: time.Duration(e.DurationSeconds) * time.Second,
			EndedAt:  e.EndedAt,
		})
	}

	return entries, nil
}

func (c *Client) StartTime(ctx context.Context, projectID string) error {
	if err := c.do(ctx, http.MethodPost, "/v1/time-entries/start", jsonBody(projectRequestJSON{ProjectID: projectID}), nil); err != nil {
		return fmt.Errorf("starting time: %w", err)
	}
	return nil
}

func (c *Client) EndTime(ctx context.Context, projectID string) error {
	if err := c.do(ctx, http.MethodPost, "/v1/time-entries/end", jsonBody(projectRequestJSON{ProjectID: projectID}), nil); err != nil {
		return fmt.Errorf("ending time: %w", err)
	}
	return nil
}

func (c *Client) AddMember(ctx context.Context, projectID string) error {
	path := fmt.Sprintf("/v1/projects/%s/members", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

func (c *Client) HasWorked(ctx context.Context, projectID string) (bool, error) {
	var w workedJSON
	path := fmt.Sprintf("/v1/projects/%s/worked", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodGet, path, nil, &w); err != nil {
		return false, fmt.Errorf("checking worked: %w", err)
	}
	return w.Worked, nil
}

func (c *Client) DailyReport(ctx context.Context, day model.Day) (*model.DailyReport, error) {
	var r dailyReportJSON
	if err := c.do(ctx, http.MethodGet, "/v1/reports/"+day.String(), nil, &r); err != nil {
		return nil, fmt.Errorf("getting daily report: %w", err)
	}

	report := &model.DailyReport{Day: day, Tasks: make([]model.Task, 0, len(r.Tasks))}
	for _, t := range r.Tasks {
		report.Tasks = append(report.Tasks, t.toModel())
	}

	return report, nil
}

func (c *Client) CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error) {
	var t taskJSON
	path := fmt.Sprintf("/v1/reports/%s/tasks", draft.Day)
	if err := c.do(ctx, http.MethodPost, path, multipartBody(draft), &t); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	task := t.toModel()
	return &task, nil
}

func (c *Client) ListPendingEntries(ctx context.Context) ([]model.PendingEntry, error) {
	var es []pendingEntryJSON
	if err := c.do(ctx, http.MethodGet, "/v1/time-entries/pending", nil, &es); err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}

	entries := make([]model.PendingEntry, 0, len(es))
	for _, e := range es {
		d, err := model.ParseDay(e.Date)
		if err != nil {
			c.logger.Warningf("Ignoring pending entry %s: %s", e.EntryID, err)
			continue
		}
		entries = append(entries, model.PendingEntry{EntryID: e.EntryID, ProjectID: e.ProjectID, Date: d})
	}

	return entries, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	var cr credentialsJSON
	err := c.send(ctx, http.MethodPost, "/v1/auth/refresh", jsonBody(refreshRequestJSON{RefreshToken: refreshToken}), &cr, false)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return &model.Credentials{
		UserID:       cr.UserID,
		AccessToken:  cr.AccessToken,
		RefreshToken: cr.RefreshToken,
		ExpiresAt:    cr.ExpiresAt,
	}, nil
}

// --- HTTP plumbing ---

// bodyFunc returns a new request body, it's called again when the request is retried.
type bodyFunc func() (body io.Reader, contentType string, err error)

func jsonBody(v any) bodyFunc {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encoding body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func multipartBody(draft model.TaskDraft) bodyFunc {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		fields := [][2]string{
			{"project_id", draft.ProjectID},
			{"name", draft.Name},
			{"description", draft.Description},
		}
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, "", fmt.Errorf("writing field %s: %w", f[0], err)
			}
		}

		for _, path := range draft.Attachments {
			if err := writeFile(w, path); err != nil {
				return nil, "", err
			}
		}

		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("closing multipart: %w", err)
		}

		return &buf, w.FormDataContentType(), nil
	}
}

func writeFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	part, err := w.CreateFormFile("attachments", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating attachment part: %w", err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying attachment: %w", err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body bodyFunc, out any) error {
	return c.send(ctx, method, path, body, out, true)
}

// send executes the request. When authenticated and the server rejects the
// token, the credentials are refreshed and the request retried once.
func (c *Client) send(ctx context.Context, method, path string, body bodyFunc, out any, auth bool) error {
	err := c.sendOnce(ctx, method, path, body, out, auth)
	if !auth || c.refresher == nil || !errors.Is(err, model.ErrUnauthorized) {
		return err
	}

	c.logger.Debugf("Request %s %s unauthorized, refreshing credentials", method, path)
	if _, rerr := c.refresher.Refresh(ctx); rerr != nil {
		return fmt.Errorf("%w: could not refresh credentials: %w", model.ErrUnauthorized, rerr)
	}

	return c.sendOnce(ctx, method, path, body, out, auth)
}

func (c *Client) sendOnce(ctx context.Context, method, path string, body bodyFunc, out any, auth bool) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		var err error
		reader, contentType, err = body()
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if auth && c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("executing request: %w: %w", model.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := fmt.Sprintf("HTTP %d from %s", resp.StatusCode, resp.Request.URL.Path)
	if m := strings.TrimSpace(string(msg)); m != "" {
		detail += ": " + m
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", detail, model.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", detail, model.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", detail, model.ErrAlreadyExists)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", detail, model.ErrNotValid)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w", detail, model.ErrTransient)
	default:
		return errors.New(detail)
	}
}
