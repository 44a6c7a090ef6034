package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/model"
)

func TestActiveSessionElapsed(t *testing.T) {
	startedAt := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		now        time.Time
		expElapsed time.Duration
	}{
		"Now equal to start should be zero.": {
			now:        startedAt,
			expElapsed: 0,
		},

		"A start in the future (clock skew) should never be negative.": {
			now:        startedAt.Add(-90 * time.Second),
			expElapsed: 0,
		},

		"Elapsed should be floored to the second.": {
			now:        startedAt.Add(600*time.Second + 999*time.Millisecond),
			expElapsed: 600 * time.Second,
		},

		"Long sessions should keep counting.": {
			now:        startedAt.Add(9*time.Hour + 3*time.Second),
			expElapsed: 9*time.Hour + 3*time.Second,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s := model.ActiveSession{StartedAt: startedAt, Running: true}
			assert.Equal(t, test.expElapsed, s.Elapsed(test.now))
		})
	}
}

func TestSessionIDVariants(t *testing.T) {
	assert := assert.New(t)

	pending := model.PendingSessionID
	assert.True(pending.IsPending())
	_, ok := pending.Confirmed()
	assert.False(ok)

	// A server ID that looks like the placeholder text must not collide with it.
	confirmed := model.ConfirmedSessionID("pending")
	assert.False(confirmed.IsPending())
	id, ok := confirmed.Confirmed()
	assert.True(ok)
	assert.Equal("pending", id)
	assert.NotEqual(pending, confirmed)
}

func TestSessionIDJSON(t *testing.T) {
	tests := map[string]struct {
		id     model.SessionID
		expRaw string
	}{
		"Pending ID should be serialized as a state.": {
			id:     model.PendingSessionID,
			expRaw: `{"state":"pending"}`,
		},
		"Confirmed ID should keep the server ID.": {
			id:     model.ConfirmedSessionID("e-123"),
			expRaw: `{"state":"confirmed","id":"e-123"}`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			raw, err := json.Marshal(test.id)
			require.NoError(err)
			assert.JSONEq(t, test.expRaw, string(raw))

			var got model.SessionID
			require.NoError(json.Unmarshal(raw, &got))
			assert.Equal(t, test.id, got)
		})
	}
}

func TestSessionIDJSONInvalid(t *testing.T) {
	var id model.SessionID
	assert.Error(t, json.Unmarshal([]byte(`{"state":"confirmed"}`), &id))
	assert.Error(t, json.Unmarshal([]byte(`{"state":"weird"}`), &id))
}

func TestActiveSessionSameIdentity(t *testing.T) {
	base := &model.ActiveSession{
		ID:          model.ConfirmedSessionID("e1"),
		ProjectID:   "p1",
		ProjectName: "Project 1",
		StartedAt:   time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		Running:     true,
	}

	other := *base
	assert.True(t, base.SameIdentity(&other))

	other.ID = model.PendingSessionID
	assert.False(t, base.SameIdentity(&other))

	var nilSession *model.ActiveSession
	assert.True(t, nilSession.SameIdentity(nil))
	assert.False(t, nilSession.SameIdentity(base))
	assert.False(t, base.SameIdentity(nil))
}

func TestTotalFor(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	session := &model.ActiveSession{ProjectID: "p1", StartedAt: now.Add(-10 * time.Minute), Running: true}
	completed := model.CompletedDurations{"p1": time.Hour, "p2": 30 * time.Minute}

	assert.Equal(t, time.Hour+10*time.Minute, model.TotalFor("p1", completed, session, now))
	assert.Equal(t, 30*time.Minute, model.TotalFor("p2", completed, session, now))
	assert.Equal(t, time.Duration(0), model.TotalFor("p3", completed, nil, now))

	// The map itself is never touched by the render time sum.
	assert.Equal(t, time.Hour, completed["p1"])
}
