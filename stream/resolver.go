package stream

import (
	"context"
	"errors"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/metrics"
	"github.com/ytget/streamsession/types"
)

// DefaultScheme is the DRM scheme reported when a Profile leaves it empty.
const DefaultScheme = "com.widevine.alpha"

// Sessions is the part of session.Manager the resolver needs.
type Sessions interface {
	EnsureValidSession(ctx context.Context, force bool) error
	Snapshot(ctx context.Context) (types.SessionState, error)
}

// Source fetches a provider's playback configuration. A provider refusal
// is reported through PlaybackConfig.ErrorCode/ErrorMessage, not err.
type Source interface {
	PlaybackConfig(ctx context.Context, state types.SessionState, assetType, assetID string) (*types.PlaybackConfig, error)
}

// Unlocker is implemented by sources that hold a concurrency lock per
// playback and expect it to be released once the manifest is known.
type Unlocker interface {
	Unlock(ctx context.Context, state types.SessionState, lock types.PlaybackLock) error
}

// ErrorMapping turns a provider error code into a reason and an optional
// localized message.
type ErrorMapping struct {
	Reason     error
	MessageKey string
}

// Profile holds the provider-specific resolution rules.
type Profile struct {
	Provider       string
	Priority       PriorityTable
	TrackingMarker string
	Errors         map[string]ErrorMapping
	Scheme         string
}

// Resolver resolves playback for one provider session.
type Resolver struct {
	sessions  Sessions
	source    Source
	profile   Profile
	localizer i18n.Localizer
	metrics   *metrics.Collector
	log       *logger.ComponentLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocalizer sets the localizer used for error messages.
func WithLocalizer(l i18n.Localizer) Option {
	return func(r *Resolver) { r.localizer = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = c }
}

// NewResolver creates a Resolver.
func NewResolver(sessions Sessions, source Source, profile Profile, opts ...Option) *Resolver {
	r := &Resolver{
		sessions:  sessions,
		source:    source,
		profile:   profile,
		localizer: i18n.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.profile.Scheme == "" {
		r.profile.Scheme = DefaultScheme
	}
	r.log = logger.WithComponent(logger.ComponentStream).With(map[string]interface{}{"provider": profile.Provider})
	return r
}

// Resolve returns the playable stream for an asset. The session token is
// always refreshed first.
func (r *Resolver) Resolve(ctx context.Context, assetType, assetID string) (pb *types.Playback, err error) {
	defer func() { r.metrics.Playback(r.profile.Provider, err) }()

	if err := r.sessions.EnsureValidSession(ctx, true); err != nil {
		return nil, err
	}
	state, err := r.sessions.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	r.log.Debug("requesting playback config", map[string]interface{}{"asset_type": assetType, "asset_id": assetID})
	cfg, err := r.source.PlaybackConfig(ctx, state, assetType, assetID)
	if err != nil {
		return nil, err
	}
	if cfg.Failed() {
		return nil, r.playbackError(cfg)
	}

	variant, err := SelectVariant(cfg.Variants, r.profile.Priority)
	if err != nil {
		return nil, errs.New(errs.KindNoStream, r.localizer.Format(i18n.NoStreamError, nil))
	}
	r.log.Debug("selected variant", map[string]interface{}{
		"profile":  variant.Profile,
		"variants": len(cfg.Variants),
	})

	pb = &types.Playback{
		URL:      StripMarker(variant.URL, r.profile.TrackingMarker),
		Profile:  variant.Profile,
		Metadata: cfg.Metadata,
	}
	if cfg.LicenseURL != "" || cfg.KeyID != "" {
		pb.DRM = &types.DRM{
			Scheme:     r.profile.Scheme,
			LicenseURL: cfg.LicenseURL,
			KeyID:      cfg.KeyID,
		}
		if cfg.KeyID != "" {
			initData, err := InitData(cfg.KeyID)
			if err != nil {
				return nil, errs.Wrap(errs.KindPlayback, r.localizer.Format(i18n.PlaybackError, map[string]string{"msg": "invalid key id"}), err)
			}
			pb.DRM.InitData = initData
		}
	}

	if cfg.Lock != nil {
		r.unlock(ctx, state, *cfg.Lock)
	}
	return pb, nil
}

// unlock releases the concurrency lock. Failures are logged and dropped.
func (r *Resolver) unlock(ctx context.Context, state types.SessionState, lock types.PlaybackLock) {
	u, ok := r.source.(Unlocker)
	if !ok {
		return
	}
	err := u.Unlock(ctx, state, lock)
	r.metrics.Unlock(r.profile.Provider, err)
	if err != nil {
		r.log.Warn(r.localizer.Format(i18n.UnlockFailed, nil), map[string]interface{}{
			"lock_id": lock.ID,
			"error":   err.Error(),
		})
		return
	}
	r.log.Debug("stream lock released", map[string]interface{}{"lock_id": lock.ID})
}

func (r *Resolver) playbackError(cfg *types.PlaybackConfig) error {
	msg := cfg.ErrorMessage
	if msg == "" {
		msg = cfg.ErrorCode
	}
	var reason error
	if m, ok := r.profile.Errors[cfg.ErrorCode]; ok {
		reason = m.Reason
		if m.MessageKey != "" {
			msg = r.localizer.Format(m.MessageKey, nil)
		}
	}
	e := errs.New(errs.KindPlayback, r.localizer.Format(i18n.PlaybackError, map[string]string{"msg": msg})).
		WithCode(cfg.ErrorCode)
	if reason != nil {
		e = e.WithReason(reason)
	}
	r.log.Info("playback declined", map[string]interface{}{"code": cfg.ErrorCode, "mapped": reason != nil})
	return e
}

// IsTerminal reports whether err should not be retried by callers.
func IsTerminal(err error) bool {
	return errors.Is(err, errs.ErrNoStream) || errors.Is(err, errs.ErrPlayback)
}
