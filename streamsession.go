package streamsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"

	"github.com/ytget/streamsession/client"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/metrics"
	"github.com/ytget/streamsession/prompt"
	"github.com/ytget/streamsession/provider/foxtel"
	"github.com/ytget/streamsession/provider/stan"
	"github.com/ytget/streamsession/session"
	"github.com/ytget/streamsession/store"
	"github.com/ytget/streamsession/stream"
	"github.com/ytget/streamsession/types"
)

// Providers lists the supported provider names.
var Providers = []string{foxtel.Name, stan.Name}

// Options holds everything Open needs. Zero values use defaults.
type Options struct {
	Store        store.Store
	Prompt       prompt.Prompt
	Localizer    i18n.Localizer
	Metrics      *metrics.Collector
	SavePassword bool
	Client       client.Config
	Foxtel       foxtel.Config
	Stan         stan.Config
}

// Builder collects options for one provider session.
//
// Use chainable setters to populate the options, then call Open.
type Builder struct {
	provider string
	options  Options
}

// startPprofServer starts a pprof server for debugging.
func startPprofServer() {
	log := logger.WithComponent(logger.ComponentApp)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log.Info("starting pprof server", map[string]interface{}{"addr": ":6060"})
		if err := http.ListenAndServe(":6060", mux); err != nil {
			log.Error("pprof server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// New starts a builder for the named provider ("foxtel" or "stan").
func New(provider string) *Builder {
	if os.Getenv("STREAMSESSION_PPROF") == "1" {
		startPprofServer()
	}
	return &Builder{provider: strings.ToLower(strings.TrimSpace(provider))}
}

// WithStore sets the persistent store. Keys are namespaced by provider name.
// Defaults to an in-memory store.
func (b *Builder) WithStore(st store.Store) *Builder {
	b.options.Store = st
	return b
}

// WithPrompt sets the device-choice prompt used on device-limit conflicts.
func (b *Builder) WithPrompt(p prompt.Prompt) *Builder {
	b.options.Prompt = p
	return b
}

// WithLocalizer sets the message catalog for user-facing errors.
func (b *Builder) WithLocalizer(l i18n.Localizer) *Builder {
	b.options.Localizer = l
	return b
}

// WithHTTPClient sets a custom HTTP client to be used for all network calls.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.options.Client.HTTPClient = hc
	return b
}

// WithSavePassword keeps the password for the refresh fallback. Pair it with
// a store.Sealed store.
func (b *Builder) WithSavePassword(save bool) *Builder {
	b.options.SavePassword = save
	return b
}

// WithMetrics records login, refresh and playback outcomes.
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.options.Metrics = c
	return b
}

// WithClientConfig sets transport options. A client set through
// WithHTTPClient is kept unless cfg carries its own.
func (b *Builder) WithClientConfig(cfg client.Config) *Builder {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = b.options.Client.HTTPClient
	}
	b.options.Client = cfg
	return b
}

// WithFoxtelConfig overrides the Foxtel endpoints and constants.
func (b *Builder) WithFoxtelConfig(cfg foxtel.Config) *Builder {
	b.options.Foxtel = cfg
	return b
}

// WithStanConfig overrides the Stan endpoints and constants.
func (b *Builder) WithStanConfig(cfg stan.Config) *Builder {
	b.options.Stan = cfg
	return b
}

// Session is an opened provider account.
type Session struct {
	name     string
	manager  *session.Manager
	resolver *stream.Resolver
	foxtel   *foxtel.Catalog
	stan     *stan.Catalog
}

type provider interface {
	session.Provider
	stream.Source
	StreamProfile() stream.Profile
}

// Open builds the provider, loads any persisted session and returns it.
func (b *Builder) Open(ctx context.Context) (*Session, error) {
	o := b.options
	if o.Store == nil {
		o.Store = store.NewMemory()
	}
	if o.Localizer == nil {
		o.Localizer = i18n.New()
	}

	s := &Session{name: b.provider}
	var p provider
	switch b.provider {
	case foxtel.Name:
		fp, err := foxtel.New(o.Foxtel, o.Client)
		if err != nil {
			return nil, err
		}
		p = fp
	case stan.Name:
		sp, err := stan.New(o.Stan, o.Client)
		if err != nil {
			return nil, err
		}
		p = sp
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: %s)", b.provider, strings.Join(Providers, ", "))
	}

	s.manager = session.New(p, store.Namespace(o.Store, b.provider), session.Options{
		SavePassword: o.SavePassword,
		Prompt:       o.Prompt,
		Localizer:    o.Localizer,
		Metrics:      o.Metrics,
	})
	if err := s.manager.Load(ctx); err != nil {
		return nil, err
	}
	s.resolver = stream.NewResolver(s.manager, p, p.StreamProfile(),
		stream.WithLocalizer(o.Localizer),
		stream.WithMetrics(o.Metrics),
	)

	switch pp := p.(type) {
	case *foxtel.Provider:
		s.foxtel = pp.NewCatalog(s.manager)
	case *stan.Provider:
		s.stan = pp.NewCatalog(s.manager)
	}
	return s, nil
}

// Provider returns the provider name.
func (s *Session) Provider() string { return s.name }

// Manager exposes the underlying session manager.
func (s *Session) Manager() *session.Manager { return s.manager }

// Login logs in, prompting for a device to remove if the account is full.
func (s *Session) Login(ctx context.Context, username, password string) error {
	return s.manager.Login(ctx, username, password)
}

// LoginWithKick logs in and deregisters the given device id on conflict.
func (s *Session) LoginWithKick(ctx context.Context, username, password, deviceID string) error {
	return s.manager.LoginWithKick(ctx, username, password, deviceID)
}

// Logout clears the persisted session.
func (s *Session) Logout(ctx context.Context) error {
	return s.manager.Logout(ctx)
}

// EnsureValidSession refreshes the token when it is expired or force is set.
func (s *Session) EnsureValidSession(ctx context.Context, force bool) error {
	return s.manager.EnsureValidSession(ctx, force)
}

// SelectProfile switches the active profile.
func (s *Session) SelectProfile(ctx context.Context, profileID string) error {
	return s.manager.SelectProfile(ctx, profileID)
}

// EntitlementToken returns the digest of the stored entitlements.
func (s *Session) EntitlementToken(ctx context.Context) (string, bool, error) {
	return s.manager.EntitlementToken(ctx)
}

// Snapshot returns the persisted session state.
func (s *Session) Snapshot(ctx context.Context) (types.SessionState, error) {
	return s.manager.Snapshot(ctx)
}

// State returns the lifecycle state.
func (s *Session) State() session.State { return s.manager.State() }

// ResolvePlayback returns a playable stream for an asset.
func (s *Session) ResolvePlayback(ctx context.Context, assetType, assetID string) (*types.Playback, error) {
	return s.resolver.Resolve(ctx, assetType, assetID)
}

// Search runs the provider's default search: VOD on Foxtel, the first page
// on Stan.
func (s *Session) Search(ctx context.Context, query string) (json.RawMessage, error) {
	switch {
	case s.foxtel != nil:
		return s.foxtel.Search(ctx, query, foxtel.SearchVOD)
	case s.stan != nil:
		return s.stan.Search(ctx, query, 1)
	}
	return nil, fmt.Errorf("search not supported for %q", s.name)
}

// Foxtel returns the Foxtel catalog, or nil for other providers.
func (s *Session) Foxtel() *foxtel.Catalog { return s.foxtel }

// Stan returns the Stan catalog, or nil for other providers.
func (s *Session) Stan() *stan.Catalog { return s.stan }
