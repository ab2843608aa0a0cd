// Package session drives the login, refresh and logout lifecycle of one
// provider account and owns its persisted state.
package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/metrics"
	"github.com/ytget/streamsession/prompt"
	"github.com/ytget/streamsession/store"
	"github.com/ytget/streamsession/types"
)

// maxKickRetries bounds the login retries that deregister another device.
const maxKickRetries = 1

// expirySkew is subtracted from a JWT exp claim.
const expirySkew = 30 * time.Second

// Options configures a Manager. Zero values use defaults.
type Options struct {
	// SavePassword keeps the plaintext password in the store for the
	// refresh fallback. Combine with store.Sealed.
	SavePassword bool
	Prompt       prompt.Prompt
	Localizer    i18n.Localizer
	Metrics      *metrics.Collector
	Now          func() time.Time
}

// Manager serializes session operations for one provider account.
type Manager struct {
	mu       sync.Mutex
	provider Provider
	store    store.Store
	opts     Options
	state    State
	log      *logger.ComponentLogger
}

// New creates a Manager. Call Load to pick up a persisted session.
func New(p Provider, st store.Store, opts Options) *Manager {
	if opts.Localizer == nil {
		opts.Localizer = i18n.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		provider: p,
		store:    st,
		opts:     opts,
		state:    LoggedOut,
		log:      logger.WithComponent(logger.ComponentSession).With(map[string]interface{}{"provider": p.Name()}),
	}
}

// Provider returns the provider this manager authenticates against.
func (m *Manager) Provider() Provider {
	return m.provider
}

// Load syncs the lifecycle state with the store.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := loadState(ctx, m.store)
	if err != nil {
		return err
	}
	if s.LoggedIn() {
		m.state = Active
	} else {
		m.state = LoggedOut
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the persisted session.
func (m *Manager) Snapshot(ctx context.Context) (types.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return loadState(ctx, m.store)
}

// LoggedIn reports whether a token is stored.
func (m *Manager) LoggedIn(ctx context.Context) bool {
	s, err := m.Snapshot(ctx)
	return err == nil && s.LoggedIn()
}

// Login clears any existing session and logs in with a password.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	return m.LoginWithKick(ctx, username, password, "")
}

// LoginWithKick is Login with a device to deregister chosen up front. When
// kick is empty and the provider reports a device conflict, the prompt is
// asked once and the login retried once with the chosen device.
func (m *Manager) LoginWithKick(ctx context.Context, username, password, kick string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.opts.Metrics.Login(m.provider.Name(), err) }()

	if err := clearState(ctx, m.store); err != nil {
		m.log.Warn("clearing previous session failed", map[string]interface{}{"error": err.Error()})
	}
	m.state = LoggingIn

	cred := Credentials{Username: username, Password: password, KickDevice: kick}
	for attempt := 0; ; attempt++ {
		if cred.KickDevice != "" {
			m.log.Info("deregistering device", map[string]interface{}{"device_id": cred.KickDevice})
		}
		grant, lErr := m.provider.Login(ctx, cred)
		if lErr == nil {
			s := types.SessionState{Username: username}
			if m.opts.SavePassword {
				s.StoredPassword = password
			}
			if cErr := m.commit(ctx, s, grant); cErr != nil {
				_ = clearState(ctx, m.store)
				m.state = LoggedOut
				return errs.Wrap(errs.KindAuthentication, m.text(i18n.LoginError, "could not save session"), cErr)
			}
			m.state = Active
			m.log.Info("logged in", map[string]interface{}{"username": username, "attempts": attempt + 1})
			return nil
		}

		var conflict *ConflictError
		if errors.As(lErr, &conflict) && cred.KickDevice == "" && attempt < maxKickRetries && len(conflict.Devices) > 0 {
			idx := prompt.Cancelled
			if m.opts.Prompt != nil {
				idx = m.opts.Prompt.Select(m.opts.Localizer.Format(i18n.DeregisterChoose, nil), conflict.Nicknames())
			}
			if idx >= 0 && idx < len(conflict.Devices) {
				cred.KickDevice = conflict.Devices[idx].ID
				m.opts.Metrics.Kick(m.provider.Name())
				continue
			}
			m.log.Info("device deregistration cancelled")
		}

		m.state = LoggedOut
		return m.loginError(lErr)
	}
}

func (m *Manager) loginError(err error) error {
	var (
		conflict *ConflictError
		rejected *RejectedError
		typed    *errs.Error
	)
	switch {
	case errors.As(err, &conflict):
		return errs.New(errs.KindAuthentication, m.text(i18n.LoginError, conflict.Message))
	case errors.As(err, &rejected):
		return errs.New(errs.KindAuthentication, m.text(i18n.LoginError, m.rejectedMessage(rejected))).
			WithCode(rejected.Code).
			WithReason(rejected.Reason)
	case errors.As(err, &typed):
		return err
	default:
		return errs.Wrap(errs.KindAuthentication, m.text(i18n.LoginError, ""), err)
	}
}

// EnsureValidSession refreshes the token when forced, when no expiry is
// stored, or when the stored expiry has passed. A rejected refresh clears
// the session and returns a SESSION_EXPIRED error; a transport failure
// leaves the session as it was.
func (m *Manager) EnsureValidSession(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx, force)
}

// ensureLocked is EnsureValidSession with m.mu already held.
func (m *Manager) ensureLocked(ctx context.Context, force bool) (err error) {
	s, err := loadState(ctx, m.store)
	if err != nil {
		return err
	}
	if !s.LoggedIn() {
		m.state = LoggedOut
		return errs.New(errs.KindSessionExpired, m.opts.Localizer.Format(i18n.NotLoggedIn, nil)).WithReason(errs.ErrNotLoggedIn)
	}
	if !force && !s.Expired(m.opts.Now()) {
		return nil
	}
	defer func() { m.opts.Metrics.Refresh(m.provider.Name(), err) }()

	m.state = Refreshing
	req := RefreshRequest{
		Username: s.Username,
		Token:    s.Token,
		DeviceID: s.DeviceID,
	}
	m.log.Debug("refreshing token", map[string]interface{}{"forced": force, "token": logger.Mask(s.Token)})
	grant, rErr := m.provider.Refresh(ctx, req)

	var rejected *RejectedError
	// The stored password is only sent after the token itself was rejected.
	if errors.As(rErr, &rejected) && s.StoredPassword != "" {
		m.log.Info("token refresh rejected, retrying with stored password", map[string]interface{}{"code": rejected.Code})
		req.Password = s.StoredPassword
		grant, rErr = m.provider.Refresh(ctx, req)
	}

	if rErr != nil {
		if errors.As(rErr, &rejected) {
			m.log.Warn("refresh rejected, logging out", map[string]interface{}{"code": rejected.Code, "message": rejected.Message})
			if cErr := clearState(ctx, m.store); cErr != nil {
				m.log.Error("clearing session failed", map[string]interface{}{"error": cErr.Error()})
			}
			m.state = LoggedOut
			return errs.New(errs.KindSessionExpired, m.text(i18n.TokenError, m.rejectedMessage(rejected))).
				WithCode(rejected.Code).
				WithReason(rejected.Reason)
		}
		m.state = Active
		return rErr
	}

	if cErr := m.commit(ctx, s, grant); cErr != nil {
		_ = clearState(ctx, m.store)
		m.state = LoggedOut
		return errs.Wrap(errs.KindSessionExpired, m.text(i18n.TokenError, "could not save session"), cErr)
	}
	m.state = Active
	return nil
}

// SelectProfile switches the active profile through a forced refresh. A
// rejection leaves the current session in place.
func (m *Manager) SelectProfile(ctx context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLocked(ctx, false); err != nil {
		return err
	}
	s, err := loadState(ctx, m.store)
	if err != nil {
		return err
	}
	grant, err := m.provider.Refresh(ctx, RefreshRequest{
		Username:  s.Username,
		Token:     s.Token,
		DeviceID:  s.DeviceID,
		ProfileID: profileID,
	})
	if err != nil {
		return m.loginError(err)
	}
	if err := m.commit(ctx, s, grant); err != nil {
		_ = clearState(ctx, m.store)
		m.state = LoggedOut
		return errs.Wrap(errs.KindSessionExpired, m.text(i18n.TokenError, "could not save session"), err)
	}
	m.log.Info("profile selected", map[string]interface{}{"profile_id": profileID})
	return nil
}

// Logout deletes every persisted session key. It is idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = LoggedOut
	if err := clearState(ctx, m.store); err != nil {
		return err
	}
	m.log.Debug("logged out")
	return nil
}

// EntitlementToken returns the hex MD5 of the stored entitlements, or
// ok == false when none are stored. It is recomputed on every call.
func (m *Manager) EntitlementToken(ctx context.Context) (token string, ok bool, err error) {
	s, err := m.Snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	t, ok := EntitlementToken(s.Entitlements)
	return t, ok, nil
}

// EntitlementToken hashes an entitlements blob.
func EntitlementToken(entitlements string) (string, bool) {
	if entitlements == "" {
		return "", false
	}
	sum := md5.Sum([]byte(entitlements))
	return hex.EncodeToString(sum[:]), true
}

// commit merges grant into prev and persists the result.
func (m *Manager) commit(ctx context.Context, prev types.SessionState, g Grant) error {
	next := prev
	next.Token = g.Token
	next.Entitlements = g.Entitlements
	next.ExpiresAt = g.ExpiresAt
	if next.ExpiresAt.IsZero() {
		if exp, ok := m.tokenExpiry(g.Token); ok {
			next.ExpiresAt = exp.Add(-expirySkew)
		}
	}
	if g.DeviceID != "" {
		next.DeviceID = g.DeviceID
	}
	if g.UserID != "" {
		next.UserID = g.UserID
	}
	if g.ProfileID != "" {
		next.ProfileID = g.ProfileID
		next.ProfileName = g.ProfileName
		next.ProfileIcon = g.ProfileIcon
		next.ProfileKids = g.ProfileKids
	}
	if next.Token == "" {
		return errors.New("provider returned an empty token")
	}
	return saveState(ctx, m.store, next)
}

// tokenExpiry reads the exp claim of a JWT without verifying it. The
// signature cannot be checked client side.
func (m *Manager) tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	sub, _ := claims.GetSubject()
	m.log.Trace("token claims", map[string]interface{}{"sub": sub, "exp": exp.Time.UTC().Format(time.RFC3339)})
	return exp.Time, true
}

func (m *Manager) rejectedMessage(r *RejectedError) string {
	if r.MessageKey != "" {
		return m.opts.Localizer.Format(r.MessageKey, nil)
	}
	return r.Message
}

func (m *Manager) text(key, msg string) string {
	return m.opts.Localizer.Format(key, map[string]string{"msg": msg})
}
