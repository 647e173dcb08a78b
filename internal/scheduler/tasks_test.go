package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/internal/domain/models"
	"TradePull/internal/feed"
)

type fakeFeedControl struct {
	state       feed.State
	configured  []models.Credential
	connects    int
	reconnects  int
	disconnects int
	lastData    time.Time
	errCount    int
	resets      int
	connectErr  error
}

func (f *fakeFeedControl) CurrentState() feed.State { return f.state }

func (f *fakeFeedControl) Configure(cred models.Credential) {
	f.configured = append(f.configured, cred)
}

func (f *fakeFeedControl) Connect(ctx context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state = feed.StateConnected
	return nil
}

func (f *fakeFeedControl) Reconnect(ctx context.Context) error {
	f.reconnects++
	return nil
}

func (f *fakeFeedControl) Disconnect() {
	f.disconnects++
	f.state = feed.StateDisconnected
}

func (f *fakeFeedControl) LastDataTime() time.Time { return f.lastData }
func (f *fakeFeedControl) ErrorCount() int         { return f.errCount }
func (f *fakeFeedControl) ResetErrors()            { f.resets++; f.errCount = 0 }

type fakeCredStore struct {
	cred    *models.Credential
	loadErr error
	saveErr error
	loads   int
	saved   *models.Credential
}

func (f *fakeCredStore) ActiveAdmin(ctx context.Context) (*models.Credential, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	c := *f.cred
	return &c, nil
}

func (f *fakeCredStore) Save(ctx context.Context, cred *models.Credential) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	c := *cred
	f.saved = &c
	return nil
}

type fakeAuth struct {
	tokens *models.SessionTokens
	err    error
	calls  int
}

func (f *fakeAuth) Refresh(ctx context.Context, apiKey, refreshToken string) (*models.SessionTokens, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func newRefresher(t *testing.T, creds *fakeCredStore, auth *fakeAuth, feedCtl *fakeFeedControl) (*TokenRefresher, *StoreBackoff) {
	t.Helper()
	backoff := NewStoreBackoff(3, 300*time.Second)
	return NewTokenRefresher(creds, auth, feedCtl, backoff, 6*time.Hour, testLogger(t)), backoff
}

func TestTokenRefresherRefreshesOldTokens(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{
		APIKey:         "key",
		ClientCode:     "A100",
		RefreshToken:   "old-refresh",
		TokenUpdatedAt: time.Now().Add(-7 * time.Hour),
	}}
	auth := &fakeAuth{tokens: &models.SessionTokens{
		SessionToken: "new-session",
		RefreshToken: "new-refresh",
		FeedToken:    "new-feed",
	}}
	feedCtl := &fakeFeedControl{state: feed.StateDisconnected}

	r, _ := newRefresher(t, creds, auth, feedCtl)
	r.Run(context.Background())

	assert.Equal(t, 1, auth.calls)
	require.NotNil(t, creds.saved)
	assert.Equal(t, "new-session", creds.saved.SessionToken)
	assert.Equal(t, "new-refresh", creds.saved.RefreshToken)
	assert.Equal(t, "new-feed", creds.saved.FeedToken)
	assert.WithinDuration(t, time.Now(), creds.saved.TokenUpdatedAt, time.Minute)

	// Feed was down, so only the credentials are swapped in.
	require.Len(t, feedCtl.configured, 1)
	assert.Zero(t, feedCtl.disconnects)
	assert.Zero(t, feedCtl.connects)
}

func TestTokenRefresherSkipsFreshTokens(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{
		TokenUpdatedAt: time.Now().Add(-2 * time.Hour),
	}}
	auth := &fakeAuth{}
	r, _ := newRefresher(t, creds, auth, &fakeFeedControl{})

	r.Run(context.Background())
	assert.Zero(t, auth.calls)
	assert.Nil(t, creds.saved)
}

func TestTokenRefresherUnknownAgeRefreshes(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{}}
	auth := &fakeAuth{tokens: &models.SessionTokens{SessionToken: "s"}}
	r, _ := newRefresher(t, creds, auth, &fakeFeedControl{})

	r.Run(context.Background())
	assert.Equal(t, 1, auth.calls, "unknown token age is treated as expired")
}

func TestTokenRefresherBouncesConnectedFeed(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{
		TokenUpdatedAt: time.Now().Add(-8 * time.Hour),
	}}
	auth := &fakeAuth{tokens: &models.SessionTokens{SessionToken: "s"}}
	feedCtl := &fakeFeedControl{state: feed.StateConnected}

	r, _ := newRefresher(t, creds, auth, feedCtl)
	r.Run(context.Background())

	assert.Equal(t, 1, feedCtl.disconnects)
	require.Len(t, feedCtl.configured, 1)
	assert.Equal(t, "s", feedCtl.configured[0].SessionToken)
	assert.Equal(t, 1, feedCtl.connects)
}

func TestTokenRefresherAuthFailureRetriesNextInterval(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{}}
	auth := &fakeAuth{err: errors.New("401")}
	r, backoff := newRefresher(t, creds, auth, &fakeFeedControl{})

	for i := 0; i < 5; i++ {
		r.Run(context.Background())
	}
	assert.Equal(t, 5, auth.calls, "auth failures never trip the store backoff")
	assert.False(t, backoff.ShouldSkip(time.Now()))
	assert.Nil(t, creds.saved)
}

func TestTokenRefresherStoreBackoff(t *testing.T) {
	creds := &fakeCredStore{loadErr: errors.New("store down")}
	r, backoff := newRefresher(t, creds, &fakeAuth{}, &fakeFeedControl{})

	for i := 0; i < 6; i++ {
		r.Run(context.Background())
	}
	assert.Equal(t, 4, creds.loads, "store access stops once the backoff trips")
	assert.True(t, backoff.ShouldSkip(time.Now()))
}

func TestTokenRefresherMissingCredentialNoBackoff(t *testing.T) {
	creds := &fakeCredStore{loadErr: models.ErrNotFound}
	r, backoff := newRefresher(t, creds, &fakeAuth{}, &fakeFeedControl{})

	for i := 0; i < 6; i++ {
		r.Run(context.Background())
	}
	assert.Equal(t, 6, creds.loads, "absence is not a store failure")
	assert.False(t, backoff.ShouldSkip(time.Now()))
}

func newMonitor(t *testing.T, creds *fakeCredStore, feedCtl *fakeFeedControl) *FeedHealthMonitor {
	t.Helper()
	backoff := NewStoreBackoff(3, 300*time.Second)
	return NewFeedHealthMonitor(creds, feedCtl, backoff, 300*time.Second, 10, testLogger(t))
}

func TestHealthMonitorRevivesDownFeed(t *testing.T) {
	creds := &fakeCredStore{cred: &models.Credential{ClientCode: "A100"}}

	for _, state := range []feed.State{feed.StateDisconnected, feed.StateFailed} {
		feedCtl := &fakeFeedControl{state: state}
		m := newMonitor(t, creds, feedCtl)
		m.Run(context.Background())

		require.Len(t, feedCtl.configured, 1, "state %s", state)
		assert.Equal(t, 1, feedCtl.connects, "state %s", state)
	}
}

func TestHealthMonitorLeavesTransientStatesAlone(t *testing.T) {
	for _, state := range []feed.State{feed.StateConnecting, feed.StateReconnecting} {
		feedCtl := &fakeFeedControl{state: state}
		m := newMonitor(t, &fakeCredStore{cred: &models.Credential{}}, feedCtl)
		m.Run(context.Background())

		assert.Empty(t, feedCtl.configured, "state %s", state)
		assert.Zero(t, feedCtl.connects, "state %s", state)
		assert.Zero(t, feedCtl.reconnects, "state %s", state)
	}
}

func TestHealthMonitorStaleDataReconnects(t *testing.T) {
	feedCtl := &fakeFeedControl{
		state:    feed.StateConnected,
		lastData: time.Now().Add(-10 * time.Minute),
	}
	m := newMonitor(t, &fakeCredStore{cred: &models.Credential{}}, feedCtl)
	m.Run(context.Background())

	assert.Equal(t, 1, feedCtl.reconnects)
	assert.Zero(t, feedCtl.resets)
}

func TestHealthMonitorErrorCountReconnects(t *testing.T) {
	feedCtl := &fakeFeedControl{
		state:    feed.StateConnected,
		lastData: time.Now(),
		errCount: 11,
	}
	m := newMonitor(t, &fakeCredStore{cred: &models.Credential{}}, feedCtl)
	m.Run(context.Background())

	assert.Equal(t, 1, feedCtl.resets)
	assert.Equal(t, 1, feedCtl.reconnects)
}

func TestHealthMonitorHealthyFeedUntouched(t *testing.T) {
	feedCtl := &fakeFeedControl{
		state:    feed.StateConnected,
		lastData: time.Now(),
		errCount: 3,
	}
	m := newMonitor(t, &fakeCredStore{cred: &models.Credential{}}, feedCtl)
	m.Run(context.Background())

	assert.Zero(t, feedCtl.reconnects)
	assert.Zero(t, feedCtl.resets)
}
