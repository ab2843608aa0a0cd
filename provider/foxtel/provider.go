// Package foxtel implements the Foxtel Now provider: device-bound logins with
// an encrypted password, device-limit conflicts, entitlement-gated catalog
// calls and Widevine playback configuration.
package foxtel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ytget/streamsession/client"
	"github.com/ytget/streamsession/credential"
	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/identity"
	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/session"
	"github.com/ytget/streamsession/stream"
	"github.com/ytget/streamsession/types"
)

// Provider talks to the Foxtel API. It implements session.Provider,
// credential.SecretFetcher and stream.Source.
type Provider struct {
	cfg     Config
	http    *client.Client
	cipher  *credential.Cipher
	deriver identity.Deriver
	log     *logger.ComponentLogger
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
	p := &Provider{
		cfg:  cfg,
		http: client.NewWith(httpCfg),
		deriver: identity.Deriver{
			IDTemplate:   cfg.IDTemplate,
			NameTemplate: cfg.NameTemplate,
		},
		log: logger.WithComponent(logger.ComponentProvider).With(map[string]interface{}{"provider": Name}),
	}
	c, err := credential.NewCipher(cfg.AESIV, p)
	if err != nil {
		return nil, fmt.Errorf("foxtel: %w", err)
	}
	p.cipher = c
	return p, nil
}

// SetHost replaces the host facts used for device identity.
func (p *Provider) SetHost(h identity.HostInfo) {
	p.deriver.Host = h
}

// Name implements session.Provider.
func (p *Provider) Name() string { return Name }

// StreamProfile returns the resolution rules for Foxtel playback.
func (p *Provider) StreamProfile() stream.Profile {
	return stream.Profile{
		Provider:       Name,
		Priority:       p.cfg.StreamPriority,
		TrackingMarker: TrackingMarker,
	}
}

type logonResponse struct {
	LogonResponse struct {
		Error *struct {
			Message string `json:"Message"`
		} `json:"Error"`
		Success *struct {
			LoginToken   string `json:"LoginToken"`
			DeviceID     string `json:"DeviceId"`
			Entitlements string `json:"Entitlements"`
		} `json:"Success"`
		CurrentDevices []struct {
			Nickname string `json:"Nickname"`
			DeviceID string `json:"DeviceID"`
		} `json:"CurrentDevices"`
	} `json:"LogonResponse"`
}

// FetchSecret implements credential.SecretFetcher with the prelogin call.
func (p *Provider) FetchSecret(ctx context.Context, deviceID, nickname string) (string, error) {
	params := url.Values{
		"deviceId": {deviceID},
		"nickName": {nickname},
		"format":   {"json"},
	}
	resp, err := p.http.Get(ctx, "/auth.class.api.php/prelogin/"+p.cfg.VODSiteID, params)
	if err != nil {
		return "", err
	}
	var out struct {
		Secret string `json:"secret"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	if out.Secret == "" {
		return "", errs.New(errs.KindAuthentication, "prelogin returned no secret")
	}
	return out.Secret, nil
}

// Login implements session.Provider. The device identity is derived anew
// for every attempt.
func (p *Provider) Login(ctx context.Context, cred session.Credentials) (session.Grant, error) {
	ident := p.deriver.Derive(cred.Username)
	p.log.Debug("device identity", map[string]interface{}{
		"raw_id":    ident.RawLabel,
		"device_id": ident.HashedID,
		"nickname":  ident.Nickname,
	})

	hexPassword, err := p.cipher.EncryptPassword(ctx, cred.Password, ident.HashedID, ident.Nickname)
	if err != nil {
		return session.Grant{}, err
	}
	form := url.Values{
		"username":    {cred.Username},
		"password":    {hexPassword},
		"deviceId":    {ident.HashedID},
		"accountType": {"foxtel"},
	}
	if cred.KickDevice != "" {
		form.Set("deviceToKick", cred.KickDevice)
	}
	return p.logon(ctx, form)
}

// Refresh implements session.Provider. A request carrying a password logs
// on with it instead of the token.
func (p *Provider) Refresh(ctx context.Context, req session.RefreshRequest) (session.Grant, error) {
	form := url.Values{
		"username":    {req.Username},
		"deviceId":    {req.DeviceID},
		"accountType": {"foxtel"},
	}
	if req.Password != "" {
		p.log.Debug("using password logon")
		nickname := p.deriver.Derive(req.Username).Nickname
		hexPassword, err := p.cipher.EncryptPassword(ctx, req.Password, req.DeviceID, nickname)
		if err != nil {
			return session.Grant{}, err
		}
		form.Set("password", hexPassword)
	} else {
		p.log.Debug("using token logon")
		form.Set("loginToken", req.Token)
	}
	return p.logon(ctx, form)
}

func (p *Provider) logon(ctx context.Context, form url.Values) (session.Grant, error) {
	params := url.Values{
		"appID":  {p.cfg.AppID},
		"format": {"json"},
	}
	resp, err := p.http.Post(ctx, "/auth.class.api.php/logon/"+p.cfg.VODSiteID, params, form)
	if err != nil {
		return session.Grant{}, err
	}
	var out logonResponse
	if err := resp.JSON(&out); err != nil {
		return session.Grant{}, err
	}

	r := out.LogonResponse
	if r.Error != nil {
		if len(r.CurrentDevices) > 0 {
			devices := make([]types.Device, 0, len(r.CurrentDevices))
			for _, d := range r.CurrentDevices {
				devices = append(devices, types.Device{ID: d.DeviceID, Nickname: d.Nickname})
			}
			return session.Grant{}, &session.ConflictError{Message: r.Error.Message, Devices: devices}
		}
		return session.Grant{}, &session.RejectedError{Message: r.Error.Message}
	}
	if r.Success == nil {
		return session.Grant{}, errs.Transport("foxtel logon", fmt.Errorf("status %d without Success or Error", resp.StatusCode))
	}
	return session.Grant{
		Token:        r.Success.LoginToken,
		DeviceID:     r.Success.DeviceID,
		Entitlements: r.Success.Entitlements,
	}, nil
}

type playbackResponse struct {
	ErrorMessage string `json:"errorMessage"`
	Media        struct {
		Streams []struct {
			Profile string `json:"profile"`
			URL     string `json:"url"`
		} `json:"streams"`
	} `json:"media"`
	FullLicenceURL string `json:"fullLicenceUrl"`
}

// PlaybackConfig implements stream.Source.
func (p *Provider) PlaybackConfig(ctx context.Context, state types.SessionState, assetType, assetID string) (*types.PlaybackConfig, error) {
	endpoint := "GOgetLiveConfig"
	if assetType == TypeVOD {
		endpoint = "GOgetVODConfig"
	}
	params := url.Values{
		"rate":       {"WIREDHIGH"},
		"plt":        {p.cfg.Platform},
		"appID":      {playbackAppID},
		"deviceCaps": {DeviceCaps()},
		"format":     {"json"},
	}
	variant := "mobile"
	if !p.cfg.LegacyMode {
		params.Set("plt", "ipstb")
		variant = "box"
	}
	target := fmt.Sprintf("%s/now-%s-140/api/playback.class.api.php/%s/%s/1/%s",
		p.cfg.PlaybackURL, variant, endpoint, p.cfg.siteID(assetType), url.PathEscape(assetID))
	form := url.Values{
		"deviceId":   {state.DeviceID},
		"loginToken": {state.Token},
	}

	resp, err := p.http.Post(ctx, target, params, form, client.WithTimeout(client.HeavyTimeout))
	if err != nil {
		return nil, err
	}
	var out playbackResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}

	cfg := &types.PlaybackConfig{
		ErrorMessage: out.ErrorMessage,
		LicenseURL:   out.FullLicenceURL,
	}
	for _, s := range out.Media.Streams {
		cfg.Variants = append(cfg.Variants, types.StreamCandidate{Profile: s.Profile, URL: s.URL})
	}
	return cfg, nil
}
