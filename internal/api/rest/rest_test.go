package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/api/rest"
	"github.com/slok/clockin/internal/model"
)

type staticTokens string

func (s staticTokens) AccessToken(ctx context.Context) (string, error) { return string(s), nil }

// testRefresher switches the token source to the new token on refresh.
type testRefresher struct {
	token *atomic.Value
	calls atomic.Int64
	err   error
}

func (r *testRefresher) Refresh(ctx context.Context) (*model.Credentials, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	r.token.Store("fresh")
	return &model.Credentials{AccessToken: "fresh"}, nil
}

type dynamicTokens struct{ token *atomic.Value }

func (d dynamicTokens) AccessToken(ctx context.Context) (string, error) {
	return d.token.Load().(string), nil
}

func newTestClient(t *testing.T, h http.Handler, cfg rest.ClientConfig) *rest.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/"
	c, err := rest.NewClient(cfg)
	require.NoError(t, err)

	return c
}

func TestNewClient(t *testing.T) {
	tests := map[string]struct {
		cfg    rest.ClientConfig
		expErr bool
	}{
		"A valid base URL should create the client.": {
			cfg: rest.ClientConfig{BaseURL: "https://time.example.com/api"},
		},
		"A missing base URL should fail.": {
			cfg:    rest.ClientConfig{},
			expErr: true,
		},
		"A relative base URL should fail.": {
			cfg:    rest.ClientConfig{BaseURL: "/api"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := rest.NewClient(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientTimeEntries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	startedAt := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	endedAt := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)
	var started, ended, member atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/time-entries/open", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer tk", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "e1",
			"project":    map[string]string{"id": "p1", "name": "Project 1"},
			"started_at": startedAt,
		})
	})
	mux.HandleFunc("GET /v1/time-entries/today", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"project": map[string]string{"id": "p2"}, "duration_seconds": 1800, "ended_at": endedAt},
			{"project": map[string]string{"id": "p1"}, "duration_seconds": 60},
		})
	})
	mux.HandleFunc("POST /v1/time-entries/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		started.Store(body["project_id"])
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/time-entries/end", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		ended.Store(body["project_id"])
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/projects/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		member.Store(r.PathValue("id"))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /v1/projects/{id}/worked", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"worked": r.PathValue("id") == "p1"})
	})

	c := newTestClient(t, mux, rest.ClientConfig{Tokens: staticTokens("tk")})

	open, err := c.OpenEntry(ctx)
	require.NoError(err)
	assert.Equal(&model.OpenEntry{ID: "e1", Project: model.Project{ID: "p1", Name: "Project 1"}, StartedAt: startedAt}, open)

	entries, err := c.TodayEntries(ctx)
	require.NoError(err)
	require.Len(entries, 2)
	assert.Equal(30*time.Minute, entries[0].Duration)
	assert.True(endedAt.Equal(*entries[0].EndedAt))
	assert.Nil(entries[1].EndedAt)

	require.NoError(c.StartTime(ctx, "p1"))
	require.NoError(c.EndTime(ctx, "p2"))
	require.NoError(c.AddMember(ctx, "p3"))
	assert.Equal("p1", started.Load())
	assert.Equal("p2", ended.Load())
	assert.Equal("p3", member.Load())

	worked, err := c.HasWorked(ctx, "p1")
	require.NoError(err)
	assert.True(worked)
	worked, err = c.HasWorked(ctx, "p2")
	require.NoError(err)
	assert.False(worked)
}

func TestClientNoOpenEntry(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	c := newTestClient(t, h, rest.ClientConfig{})

	open, err := c.OpenEntry(context.Background())
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestClientReportsAndPending(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	day := model.Day{Year: 2026, Month: 10, Day: 14}
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/reports/{day}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("2026-10-14", r.PathValue("day"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"day": "2026-10-14",
			"tasks": []map[string]any{
				{"id": "t1", "project_id": "p1", "report_id": "r1", "name": "Task 1", "created_at": created, "effective_date": created},
			},
		})
	})
	mux.HandleFunc("GET /v1/time-entries/pending", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"entry_id": "pe1", "project_id": "p1", "date": "2026-10-13"},
			{"entry_id": "pe2", "project_id": "p1", "date": "not-a-date"},
		})
	})
	mux.HandleFunc("POST /v1/reports/{day}/tasks", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(r.ParseMultipartForm(1 << 20))
		assert.Equal("p1", r.FormValue("project_id"))
		assert.Equal("Fix login", r.FormValue("name"))

		files := r.MultipartForm.File["attachments"]
		require.Len(files, 1)
		assert.Equal("notes.txt", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(err)
		data, _ := io.ReadAll(f)
		assert.Equal("some notes", string(data))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "t2", "project_id": "p1", "name": "Fix login", "created_at": created, "effective_date": created,
		})
	})

	c := newTestClient(t, mux, rest.ClientConfig{})

	report, err := c.DailyReport(ctx, day)
	require.NoError(err)
	assert.Equal(day, report.Day)
	assert.Equal([]model.Task{{ID: "t1", ProjectID: "p1", ReportID: "r1", Name: "Task 1", CreatedAt: created, EffectiveDate: created}}, report.Tasks)

	entries, err := c.ListPendingEntries(ctx)
	require.NoError(err)
	assert.Equal([]model.PendingEntry{{EntryID: "pe1", ProjectID: "p1", Date: model.Day{Year: 2026, Month: 10, Day: 13}}}, entries)

	attachment := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(os.WriteFile(attachment, []byte("some notes"), 0o644))
	task, err := c.CreateTask(ctx, model.TaskDraft{ProjectID: "p1", Name: "Fix login", Day: day, Attachments: []string{attachment}})
	require.NoError(err)
	assert.Equal("t2", task.ID)

	_, err = c.CreateTask(ctx, model.TaskDraft{ProjectID: "p1", Day: day, Attachments: []string{"/missing/file"}})
	assert.Error(err)
}

func TestClientErrors(t *testing.T) {
	tests := map[string]struct {
		status int
		expErr error
	}{
		"Unauthorized should be an authentication error.": {status: http.StatusUnauthorized, expErr: model.ErrUnauthorized},
		"Not found should be not found.":                  {status: http.StatusNotFound, expErr: model.ErrNotFound},
		"Bad request should be not valid.":                {status: http.StatusBadRequest, expErr: model.ErrNotValid},
		"Conflict should be already exists.":              {status: http.StatusConflict, expErr: model.ErrAlreadyExists},
		"Server errors should be transient.":              {status: http.StatusBadGateway, expErr: model.ErrTransient},
		"Rate limits should be transient.":                {status: http.StatusTooManyRequests, expErr: model.ErrTransient},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", test.status)
			})
			c := newTestClient(t, h, rest.ClientConfig{})

			err := c.StartTime(context.Background(), "p1")
			assert.ErrorIs(t, err, test.expErr)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClientNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := rest.NewClient(rest.ClientConfig{BaseURL: url})
	require.NoError(t, err)

	_, err = c.HasWorked(context.Background(), "p1")
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestClientRefreshAndRetry(t *testing.T) {
	tests := map[string]struct {
		acceptFresh  bool
		refreshErr   error
		expErr       error
		expRequests  int64
		expRefreshes int64
	}{
		"A rejected token should be refreshed and the request retried.": {
			acceptFresh:  true,
			expRequests:  2,
			expRefreshes: 1,
		},

		"A rejected retry should not be retried again.": {
			acceptFresh:  false,
			expErr:       model.ErrUnauthorized,
			expRequests:  2,
			expRefreshes: 1,
		},

		"A failed refresh should not retry.": {
			refreshErr:   model.ErrLoggedOut,
			expErr:       model.ErrLoggedOut,
			expRequests:  1,
			expRefreshes: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var requests atomic.Int64
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				if test.acceptFresh && r.Header.Get("Authorization") == "Bearer fresh" {
					_ = json.NewEncoder(w).Encode(map[string]bool{"worked": true})
					return
				}
				w.WriteHeader(http.StatusUnauthorized)
			})

			token := &atomic.Value{}
			token.Store("stale")
			refresher := &testRefresher{token: token, err: test.refreshErr}
			c := newTestClient(t, h, rest.ClientConfig{Tokens: dynamicTokens{token: token}, Refresher: refresher})

			worked, err := c.HasWorked(context.Background(), "p1")
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				assert.ErrorIs(err, model.ErrUnauthorized)
			} else {
				assert.NoError(err)
				assert.True(worked)
			}
			assert.Equal(test.expRequests, requests.Load())
			assert.Equal(test.expRefreshes, refresher.calls.Load())
		})
	}
}

func TestClientRefreshTokenIsAnonymous(t *testing.T) {
	assert := assert.New(t)
	expires := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/auth/refresh", r.URL.Path)
		assert.Empty(r.Header.Get("Authorization"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal("rt1", body["refresh_token"])
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": "u1", "access_token": "at2", "refresh_token": "rt2", "expires_at": expires})
	})
	c := newTestClient(t, h, rest.ClientConfig{Tokens: staticTokens("tk")})

	creds, err := c.RefreshToken(context.Background(), "rt1")
	require.NoError(t, err)
	assert.Equal(&model.Credentials{UserID: "u1", AccessToken: "at2", RefreshToken: "rt2", ExpiresAt: expires}, creds)
}
