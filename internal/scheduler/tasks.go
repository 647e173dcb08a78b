package scheduler

import (
	"context"
	"errors"
	"time"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/internal/feed"
	"TradePull/pkg/logger"
)

// FeedControl is the slice of the feed connection the background tasks
// drive.
type FeedControl interface {
	CurrentState() feed.State
	Configure(cred models.Credential)
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect()
	LastDataTime() time.Time
	ErrorCount() int
	ResetErrors()
}

// TokenRefresher keeps the admin credential fresh. Tokens older than
// maxAge, or of unknown age, are exchanged for a new set; if the feed is
// connected it is bounced onto the new credentials.
type TokenRefresher struct {
	creds   repository.CredentialStore
	auth    repository.AuthClient
	feedCtl FeedControl
	backoff *StoreBackoff
	maxAge  time.Duration
	logger  *logger.Logger
}

func NewTokenRefresher(
	creds repository.CredentialStore,
	auth repository.AuthClient,
	feedCtl FeedControl,
	backoff *StoreBackoff,
	maxAge time.Duration,
	lgr *logger.Logger,
) *TokenRefresher {
	return &TokenRefresher{
		creds:   creds,
		auth:    auth,
		feedCtl: feedCtl,
		backoff: backoff,
		maxAge:  maxAge,
		logger:  lgr,
	}
}

func (t *TokenRefresher) Run(ctx context.Context) {
	now := time.Now()
	if t.backoff.ShouldSkip(now) {
		t.logger.Debug("token refresh skipped, store backoff active")
		return
	}

	cred, err := t.creds.ActiveAdmin(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			t.backoff.Failure(now)
		}
		t.logger.Warn("load admin credential", logger.Error(err))
		return
	}
	t.backoff.Success()

	age, known := cred.Age(now)
	if known && age <= t.maxAge {
		return
	}
	t.logger.Info("refreshing session tokens",
		logger.Duration("age", age),
		logger.Bool("age_known", known))

	tokens, err := t.auth.Refresh(ctx, cred.APIKey, cred.RefreshToken)
	if err != nil {
		// Auth failures are not escalated; the next interval retries.
		t.logger.Error("token refresh failed", logger.Error(err))
		return
	}

	cred.SessionToken = tokens.SessionToken
	cred.RefreshToken = tokens.RefreshToken
	cred.FeedToken = tokens.FeedToken
	cred.TokenUpdatedAt = now
	if err := t.creds.Save(ctx, cred); err != nil {
		t.backoff.Failure(time.Now())
		t.logger.Error("persist refreshed tokens", logger.Error(err))
		return
	}

	if t.feedCtl.CurrentState() == feed.StateConnected {
		t.feedCtl.Disconnect()
		t.feedCtl.Configure(*cred)
		if err := t.feedCtl.Connect(ctx); err != nil {
			t.logger.Error("reconnect with refreshed tokens", logger.Error(err))
		}
	} else {
		t.feedCtl.Configure(*cred)
	}
	t.logger.Info("session tokens refreshed", logger.String("client_code", cred.ClientCode))
}

// FeedHealthMonitor keeps the feed connection alive: it connects a down
// feed, forces a reconnect when no data has arrived past the staleness
// window, and treats an elevated processing error count as another
// reconnect trigger.
type FeedHealthMonitor struct {
	creds      repository.CredentialStore
	feedCtl    FeedControl
	backoff    *StoreBackoff
	staleAfter time.Duration
	maxErrors  int
	logger     *logger.Logger
}

func NewFeedHealthMonitor(
	creds repository.CredentialStore,
	feedCtl FeedControl,
	backoff *StoreBackoff,
	staleAfter time.Duration,
	maxErrors int,
	lgr *logger.Logger,
) *FeedHealthMonitor {
	return &FeedHealthMonitor{
		creds:      creds,
		feedCtl:    feedCtl,
		backoff:    backoff,
		staleAfter: staleAfter,
		maxErrors:  maxErrors,
		logger:     lgr,
	}
}

func (m *FeedHealthMonitor) Run(ctx context.Context) {
	switch m.feedCtl.CurrentState() {
	case feed.StateDisconnected, feed.StateFailed:
		m.reviveFeed(ctx)
	case feed.StateConnected:
		m.checkLiveness(ctx)
	}
}

func (m *FeedHealthMonitor) reviveFeed(ctx context.Context) {
	now := time.Now()
	if m.backoff.ShouldSkip(now) {
		m.logger.Debug("feed revive skipped, store backoff active")
		return
	}

	cred, err := m.creds.ActiveAdmin(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			m.backoff.Failure(now)
		}
		m.logger.Warn("load admin credential", logger.Error(err))
		return
	}
	m.backoff.Success()

	m.feedCtl.Configure(*cred)
	if err := m.feedCtl.Connect(ctx); err != nil {
		m.logger.Error("feed revive failed", logger.Error(err))
		return
	}
	m.logger.Info("feed revived by health monitor")
}

func (m *FeedHealthMonitor) checkLiveness(ctx context.Context) {
	if last := m.feedCtl.LastDataTime(); !last.IsZero() && time.Since(last) > m.staleAfter {
		m.logger.Warn("feed stale, forcing reconnect",
			logger.Duration("since_last_data", time.Since(last)))
		if err := m.feedCtl.Reconnect(ctx); err != nil {
			m.logger.Error("stale reconnect failed", logger.Error(err))
		}
		return
	}

	if count := m.feedCtl.ErrorCount(); count > m.maxErrors {
		m.logger.Warn("feed error count elevated, forcing reconnect",
			logger.Int("error_count", count))
		m.feedCtl.ResetErrors()
		if err := m.feedCtl.Reconnect(ctx); err != nil {
			m.logger.Error("error-count reconnect failed", logger.Error(err))
		}
	}
}
