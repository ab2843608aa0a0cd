// Package stan implements the Stan provider: signed account logins,
// JWT app sessions with profiles, and Widevine playback behind a
// concurrency lock.
package stan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/streamsession/client"
	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/session"
	"github.com/ytget/streamsession/signer"
	"github.com/ytget/streamsession/stream"
	"github.com/ytget/streamsession/types"
)

// renewSkew is taken off the server's renew time.
const renewSkew = 30 * time.Second

// Provider talks to the Stan API. It implements session.Provider,
// stream.Source and stream.Unlocker.
type Provider struct {
	cfg    Config
	http   *client.Client
	signer *signer.Signer
	now    func() time.Time
	log    *logger.ComponentLogger
}

// New creates a provider. BaseURL and Headers of httpCfg default to the
// provider's own.
func New(cfg Config, httpCfg client.Config) (*Provider, error) {
	cfg = cfg.withDefaults()
	if httpCfg.BaseURL == "" {
		httpCfg.BaseURL = cfg.APIURL
	}
	if httpCfg.Headers == nil {
		httpCfg.Headers = cfg.Headers
	}
	s, err := signer.New(keyMaskA, keyMaskB)
	if err != nil {
		return nil, fmt.Errorf("stan: %w", err)
	}
	return &Provider{
		cfg:    cfg,
		http:   client.NewWith(httpCfg),
		signer: s,
		now:    time.Now,
		log:    logger.WithComponent(logger.ComponentProvider).With(map[string]interface{}{"provider": Name}),
	}, nil
}

// Name implements session.Provider.
func (p *Provider) Name() string { return Name }

// StreamProfile returns the resolution rules for Stan playback.
func (p *Provider) StreamProfile() stream.Profile {
	return stream.Profile{
		Provider: Name,
		Priority: stream.PriorityTable{p.cfg.Quality: 1, stream.DefaultKey: 0},
		Errors:   playbackErrors,
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Errors  []apiError `json:"errors"`
	JWToken string     `json:"jwToken"`
	Renew   float64    `json:"renew"`
	Now     float64    `json:"now"`
	UserID  string     `json:"userId"`
	Profile struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IconImage struct {
			URL string `json:"url"`
		} `json:"iconImage"`
		IsKidsProfile bool `json:"isKidsProfile"`
	} `json:"profile"`
}

// Login implements session.Provider with a signed account login.
// Device conflicts do not occur on Stan.
func (p *Provider) Login(ctx context.Context, cred session.Credentials) (session.Grant, error) {
	payload := map[string]string{
		"email":       cred.Username,
		"password":    cred.Password,
		"rnd":         strconv.FormatInt(p.now().Unix(), 10),
		"stanName":    clientName,
		"type":        clientType,
		"os":          clientOS,
		"stanVersion": p.cfg.StanVersion,
	}
	signed := p.signer.SignRequest(payload)

	form := url.Values{"sign": {signed.Signature}}
	for k, v := range signed.Params {
		form.Set(k, v)
	}
	return p.session(ctx, "/login/v1/sessions/mobile/account", nil, form)
}

// Refresh implements session.Provider. A request carrying a password
// starts a new account session instead.
func (p *Provider) Refresh(ctx context.Context, req session.RefreshRequest) (session.Grant, error) {
	if req.Password != "" {
		p.log.Debug("using password login")
		return p.Login(ctx, session.Credentials{Username: req.Username, Password: req.Password})
	}
	params := url.Values{
		"type":        {clientType},
		"os":          {clientOS},
		"stanVersion": {p.cfg.StanVersion},
	}
	form := url.Values{"jwToken": {req.Token}}
	if req.ProfileID != "" {
		form.Set("profileId", req.ProfileID)
	}
	return p.session(ctx, "/login/v1/sessions/mobile/app", params, form)
}

func (p *Provider) session(ctx context.Context, path string, params, form url.Values) (session.Grant, error) {
	resp, err := p.http.Post(ctx, path, params, form)
	if err != nil {
		return session.Grant{}, err
	}
	var out sessionResponse
	if err := resp.JSON(&out); err != nil {
		return session.Grant{}, err
	}
	if len(out.Errors) > 0 {
		rejected := &session.RejectedError{Code: out.Errors[0].Code, Message: out.Errors[0].Code}
		if rejected.Code == CodeVPNDetected {
			rejected.MessageKey = i18n.IPAddressError
			rejected.Reason = errs.ErrIPAddress
		}
		return session.Grant{}, rejected
	}
	if out.JWToken == "" {
		return session.Grant{}, errs.Transport("stan session", fmt.Errorf("status %d without jwToken", resp.StatusCode))
	}

	g := session.Grant{
		Token:       out.JWToken,
		UserID:      out.UserID,
		ProfileID:   out.Profile.ID,
		ProfileName: out.Profile.Name,
		ProfileIcon: out.Profile.IconImage.URL,
		ProfileKids: out.Profile.IsKidsProfile,
	}
	if out.Renew > 0 {
		lifetime := time.Duration((out.Renew - out.Now) * float64(time.Second))
		g.ExpiresAt = p.now().Add(lifetime - renewSkew)
	}
	return g, nil
}

// program fetches a program, from the kids catalog on a kids profile.
func (p *Provider) program(ctx context.Context, s types.SessionState, programID string) (json.RawMessage, error) {
	path := "/cat/v12/programs/" + url.PathEscape(programID) + ".json"
	if s.ProfileKids {
		path = "/cat/v12/kids/programs/" + url.PathEscape(programID) + ".json"
	}
	resp, err := p.http.Get(ctx, path, url.Values{"jwToken": {s.Token}})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := resp.JSON(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type streamsResponse struct {
	Errors []apiError `json:"errors"`
	Media  struct {
		VideoURL string         `json:"videoUrl"`
		DRM      map[string]any `json:"drm"`
	} `json:"media"`
	Concurrency struct {
		LockID            string `json:"lockID"`
		LockSequenceToken string `json:"lockSequenceToken"`
	} `json:"concurrency"`
}

// PlaybackConfig implements stream.Source. The program is checked first so
// region and kids-profile refusals surface before a stream lock is taken.
func (p *Provider) PlaybackConfig(ctx context.Context, s types.SessionState, _, programID string) (*types.PlaybackConfig, error) {
	program, err := p.program(ctx, s, programID)
	if err != nil {
		return nil, err
	}
	var check struct {
		Errors []apiError `json:"errors"`
	}
	if err := json.Unmarshal(program, &check); err == nil && len(check.Errors) > 0 {
		return declined(check.Errors[0]), nil
	}

	params := url.Values{
		"programId":        {programID},
		"jwToken":          {s.Token},
		"format":           {"dash"},
		"capabilities.drm": {"widevine"},
		"quality":          {p.cfg.Quality},
	}
	resp, err := p.http.Get(ctx, "/concurrency/v1/streams", params, client.WithTimeout(client.HeavyTimeout))
	if err != nil {
		return nil, err
	}
	var out streamsResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return declined(out.Errors[0]), nil
	}

	cfg := &types.PlaybackConfig{
		LicenseURL: p.cfg.LicenseURL,
		Metadata: map[string]any{
			"program": program,
			"drm":     out.Media.DRM,
		},
	}
	if keyID, ok := out.Media.DRM["keyId"].(string); ok {
		cfg.KeyID = keyID
	}
	if out.Media.VideoURL != "" {
		cfg.Variants = []types.StreamCandidate{{Profile: p.cfg.Quality, URL: p.ManifestURL(out.Media.VideoURL)}}
	}
	if out.Concurrency.LockID != "" {
		cfg.Lock = &types.PlaybackLock{ID: out.Concurrency.LockID, SequenceToken: out.Concurrency.LockSequenceToken}
	}
	return cfg, nil
}

func declined(e apiError) *types.PlaybackConfig {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	return &types.PlaybackConfig{ErrorCode: e.Code, ErrorMessage: msg}
}

// ManifestURL wraps a CDN manifest URL in the Android TV manifest proxy.
func (p *Provider) ManifestURL(videoURL string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(p.cfg.APIURL, "/"))
	b.WriteString("/manifest/v1/dash/androidtv.mpd?url=")
	b.WriteString(signer.QuotePlus(videoURL, ""))
	b.WriteString("&audioType=all&version=88")
	return b.String()
}

// Unlock implements stream.Unlocker.
func (p *Provider) Unlock(ctx context.Context, s types.SessionState, lock types.PlaybackLock) error {
	params := url.Values{
		"form":           {"json"},
		"schema":         {"1.0"},
		"jwToken":        {s.Token},
		"_id":            {lock.ID},
		"_sequenceToken": {lock.SequenceToken},
		"_encryptedLock": {lockScheme},
	}
	resp, err := p.http.Get(ctx, "/concurrency/v1/unlock", params)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errs.Transport("stan unlock", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
