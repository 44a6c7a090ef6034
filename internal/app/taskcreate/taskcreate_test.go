package taskcreate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/api/apimock"
	"github.com/slok/clockin/internal/app/taskcreate"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/pending"
	"github.com/slok/clockin/internal/taskcache"
)

var (
	now       = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	today     = model.DayOf(now, time.UTC)
	yesterday = today.AddDays(-1)
)

func TestNewService(t *testing.T) {
	cache, err := taskcache.NewCache(taskcache.CacheConfig{})
	require.NoError(t, err)

	tests := map[string]struct {
		cfg    taskcreate.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config without pending tracker": {
			cfg: taskcreate.ServiceConfig{Client: &apimock.MockClient{}, Cache: cache},
		},
		"Missing client returns error": {
			cfg:    taskcreate.ServiceConfig{Cache: cache},
			expErr: true,
			errMsg: "client is required",
		},
		"Missing cache returns error": {
			cfg:    taskcreate.ServiceConfig{Client: &apimock.MockClient{}},
			expErr: true,
			errMsg: "cache is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := taskcreate.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceCreate(t *testing.T) {
	created := model.Task{ID: "t1", ProjectID: "p1", ReportID: "r1", Name: "Review", EffectiveDate: now}

	tests := map[string]struct {
		draft        model.TaskDraft
		preCache     map[model.BucketKey][]model.Task
		mock         func(m *apimock.MockClient)
		expErr       error
		expBuckets   map[model.BucketKey][]model.Task
		expCompleted map[string]bool
	}{
		"A draft without name should fail.": {
			draft:        model.TaskDraft{ProjectID: "p1", Day: yesterday},
			mock:         func(m *apimock.MockClient) {},
			expErr:       model.ErrNotValid,
			expBuckets:   map[model.BucketKey][]model.Task{},
			expCompleted: map[string]bool{},
		},

		"A server error should fail without touching the cache.": {
			draft: model.TaskDraft{ProjectID: "p1", Name: "Review", Day: yesterday},
			mock: func(m *apimock.MockClient) {
				m.On("CreateTask", mock.Anything, mock.Anything).Once().Return(nil, model.ErrTransient)
			},
			expErr:       model.ErrTransient,
			expBuckets:   map[model.BucketKey][]model.Task{},
			expCompleted: map[string]bool{},
		},

		"A created task should be added to the draft day and complete its pending entries.": {
			draft: model.TaskDraft{ProjectID: "p1", Name: "Review", Day: yesterday},
			mock: func(m *apimock.MockClient) {
				m.On("CreateTask", mock.Anything, model.TaskDraft{ProjectID: "p1", Name: "Review", Day: yesterday}).Once().Return(&created, nil)
			},
			expBuckets: map[model.BucketKey][]model.Task{
				{ProjectID: "p1", Day: yesterday}: {created},
			},
			expCompleted: map[string]bool{"e1": true},
		},

		"A push echo routed to another day should be moved to the draft day.": {
			draft: model.TaskDraft{ProjectID: "p1", Name: "Review", Day: yesterday},
			preCache: map[model.BucketKey][]model.Task{
				{ProjectID: "p1", Day: today}: {created},
			},
			mock: func(m *apimock.MockClient) {
				m.On("CreateTask", mock.Anything, mock.Anything).Once().Return(&created, nil)
			},
			expBuckets: map[model.BucketKey][]model.Task{
				{ProjectID: "p1", Day: today}:     {},
				{ProjectID: "p1", Day: yesterday}: {created},
			},
			expCompleted: map[string]bool{"e1": true},
		},

		"A push echo on the draft day should not duplicate the task.": {
			draft: model.TaskDraft{ProjectID: "p1", Name: "Review", Day: yesterday},
			preCache: map[model.BucketKey][]model.Task{
				{ProjectID: "p1", Day: yesterday}: {created},
			},
			mock: func(m *apimock.MockClient) {
				m.On("CreateTask", mock.Anything, mock.Anything).Once().Return(&created, nil)
			},
			expBuckets: map[model.BucketKey][]model.Task{
				{ProjectID: "p1", Day: yesterday}: {created},
			},
			expCompleted: map[string]bool{"e1": true},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			m := &apimock.MockClient{}
			m.On("ListPendingEntries", mock.Anything).Once().Return([]model.PendingEntry{
				{EntryID: "e1", ProjectID: "p1", Date: yesterday},
				{EntryID: "e2", ProjectID: "p1", Date: today.AddDays(-2)},
			}, nil)
			test.mock(m)

			wf, err := pending.NewWorkflow(pending.WorkflowConfig{
				Client:   m,
				Location: time.UTC,
				TimeNow:  func() time.Time { return now },
			})
			require.NoError(err)
			require.NoError(wf.Load(ctx))

			cache, err := taskcache.NewCache(taskcache.CacheConfig{})
			require.NoError(err)
			for k, ts := range test.preCache {
				cache.Replace(k, ts)
			}

			svc, err := taskcreate.NewService(taskcreate.ServiceConfig{Client: m, Cache: cache, Pending: wf})
			require.NoError(err)

			task, err := svc.Create(ctx, taskcreate.CreateOptions{Draft: test.draft})

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				assert.Nil(task)
			} else if assert.NoError(err) {
				assert.Equal(created, *task)
			}

			gotBuckets := map[model.BucketKey][]model.Task{}
			for _, k := range cache.Keys() {
				gotBuckets[k], _ = cache.Peek(k)
			}
			assert.Equal(test.expBuckets, gotBuckets)
			assert.Equal(test.expCompleted, wf.State().CompletedIDs)
			m.AssertExpectations(t)
		})
	}
}
