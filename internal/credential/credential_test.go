package credential_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/api/apimock"
	"github.com/slok/clockin/internal/credential"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/push"
	"github.com/slok/clockin/internal/push/memory"
	"github.com/slok/clockin/internal/push/pushmock"
	storagememory "github.com/slok/clockin/internal/storage/memory"
)

var initialCreds = model.Credentials{UserID: "u1", AccessToken: "at1", RefreshToken: "rt1"}

func newCoordinator(t *testing.T, m *apimock.MockClient, withCreds bool) (*credential.Coordinator, *storagememory.Repository) {
	repo, err := storagememory.NewRepository(storagememory.RepositoryConfig{})
	require.NoError(t, err)
	if withCreds {
		require.NoError(t, repo.SaveCredentials(context.Background(), initialCreds))
	}

	c, err := credential.NewCoordinator(credential.CoordinatorConfig{Client: m, Repository: repo})
	require.NoError(t, err)
	require.NoError(t, c.Restore(context.Background()))

	return c, repo
}

func TestNewCoordinator(t *testing.T) {
	tests := map[string]struct {
		config credential.CoordinatorConfig
		expErr bool
	}{
		"valid config should create the coordinator": {
			config: credential.CoordinatorConfig{Client: &apimock.MockClient{}, Repository: &storagememory.Repository{}},
		},
		"missing client should fail": {
			config: credential.CoordinatorConfig{Repository: &storagememory.Repository{}},
			expErr: true,
		},
		"missing repository should fail": {
			config: credential.CoordinatorConfig{Client: &apimock.MockClient{}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := credential.NewCoordinator(test.config)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoordinatorRefresh(t *testing.T) {
	tests := map[string]struct {
		withCreds    bool
		mock         func(m *apimock.MockClient)
		expErr       error
		expToken     string
		expConnected bool
		expRenewed   int
		expLogouts   int
	}{
		"A successful refresh should store the new credentials and notify.": {
			withCreds: true,
			mock: func(m *apimock.MockClient) {
				m.On("RefreshToken", mock.Anything, "rt1").Once().Return(&model.Credentials{AccessToken: "at2"}, nil)
			},
			expToken:     "at2",
			expConnected: true,
			expRenewed:   1,
		},

		"A failed refresh should log out.": {
			withCreds: true,
			mock: func(m *apimock.MockClient) {
				m.On("RefreshToken", mock.Anything, "rt1").Once().Return(nil, model.ErrUnauthorized)
			},
			expErr:     model.ErrLoggedOut,
			expLogouts: 1,
		},

		"Missing credentials should log out without calling the server.": {
			mock:       func(m *apimock.MockClient) {},
			expErr:     model.ErrLoggedOut,
			expLogouts: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()

			m := &apimock.MockClient{}
			test.mock(m)
			c, repo := newCoordinator(t, m, test.withCreds)

			renewed, logouts := 0, 0
			c.OnRenewed(func(ctx context.Context, creds model.Credentials) { renewed++ })
			c.OnLogout(func(ctx context.Context) { logouts++ })

			creds, err := c.Refresh(ctx)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				_, err := repo.GetCredentials(ctx)
				assert.ErrorIs(err, model.ErrNotFound)
			} else if assert.NoError(err) {
				assert.Equal(test.expToken, creds.AccessToken)
				// Missing fields are kept from the previous credentials.
				assert.Equal("rt1", creds.RefreshToken)
				assert.Equal("u1", creds.UserID)

				token, err := c.AccessToken(ctx)
				assert.NoError(err)
				assert.Equal(test.expToken, token)
			}

			assert.Equal(test.expConnected, c.Connected())
			assert.Equal(test.expRenewed, renewed)
			assert.Equal(test.expLogouts, logouts)
			m.AssertExpectations(t)
		})
	}
}

func TestCoordinatorConcurrentRefreshIsSingleFlight(t *testing.T) {
	assert := assert.New(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	m := &apimock.MockClient{}
	m.On("RefreshToken", mock.Anything, "rt1").Once().Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&model.Credentials{AccessToken: "at2"}, nil)

	c, _ := newCoordinator(t, m, true)

	var wg sync.WaitGroup
	results := make([]*model.Credentials, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Refresh(context.Background())
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = c.Refresh(context.Background())
	}()

	// Let the second caller join the in-flight refresh.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		assert.NoError(errs[i])
		assert.Equal("at2", results[i].AccessToken)
	}
	m.AssertExpectations(t)
}

func TestCoordinatorRefreshCallerCancellation(t *testing.T) {
	assert := assert.New(t)

	release := make(chan struct{})
	done := make(chan struct{})
	m := &apimock.MockClient{}
	m.On("RefreshToken", mock.Anything, "rt1").Once().Run(func(args mock.Arguments) {
		<-release
		// The shared refresh context is not cancelled by the caller.
		assert.NoError(args.Get(0).(context.Context).Err())
	}).Return(&model.Credentials{AccessToken: "at2"}, nil)

	c, _ := newCoordinator(t, m, true)
	c.OnRenewed(func(ctx context.Context, creds model.Credentials) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.Refresh(ctx)
	assert.True(errors.Is(err, context.Canceled))

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		assert.Fail("refresh did not finish")
	}

	token, err := c.AccessToken(context.Background())
	assert.NoError(err)
	assert.Equal("at2", token)
}

func TestCoordinatorLoginLogout(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	c, _ := newCoordinator(t, &apimock.MockClient{}, false)
	assert.False(c.Connected())

	_, err := c.AccessToken(ctx)
	assert.ErrorIs(err, model.ErrLoggedOut)

	require.NoError(c.Login(ctx, initialCreds))
	assert.True(c.Connected())

	logouts := 0
	unsubscribe := c.OnLogout(func(ctx context.Context) { logouts++ })
	require.NoError(c.Logout(ctx))
	assert.False(c.Connected())
	assert.Equal(1, logouts)

	unsubscribe()
	require.NoError(c.Logout(ctx))
	assert.Equal(1, logouts)
	assert.Equal(0, c.Subscriptions())
}

func TestCoordinatorBindTransport(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	m := &apimock.MockClient{}
	m.On("RefreshToken", mock.Anything, "rt1").Once().Return(&model.Credentials{AccessToken: "at2"}, nil)
	c, _ := newCoordinator(t, m, true)

	hub, err := memory.NewHub(memory.HubConfig{})
	require.NoError(err)
	require.NoError(hub.Connect(ctx, "at1"))

	unbind := c.BindTransport(hub)
	assert.Equal(1, hub.Listeners())
	assert.Equal(1, c.Subscriptions())

	// Non token events are ignored.
	hub.Publish(ctx, model.Event{ID: "d1", Type: model.EventTypeTimeEntry})
	assert.Equal(0, hub.Reconnects())

	hub.Publish(ctx, model.Event{ID: "d2", Type: model.EventTypeTokenError})
	assert.Equal(1, hub.Reconnects())
	assert.Equal("at2", hub.Token())
	assert.True(c.Connected())

	unbind()
	assert.Equal(0, hub.Listeners())
	assert.Equal(0, c.Subscriptions())
	m.AssertExpectations(t)
}

func TestCoordinatorBindTransportRefreshFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := &apimock.MockClient{}
	m.On("RefreshToken", mock.Anything, "rt1").Once().Return(nil, model.ErrUnauthorized)
	c, _ := newCoordinator(t, m, true)

	var listener push.Listener
	tm := &pushmock.MockTransport{}
	tm.On("Subscribe", mock.Anything).Once().Run(func(args mock.Arguments) {
		listener = args.Get(0).(push.Listener)
	}).Return(func() {})

	c.BindTransport(tm)
	require.NotNil(t, listener)

	listener(ctx, model.Event{Type: model.EventTypeTokenError})
	assert.False(c.Connected())

	// Reconnect is never called.
	tm.AssertExpectations(t)
	m.AssertExpectations(t)
}
