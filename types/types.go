package types

import "time"

// SessionState is the persisted view of an authenticated session.
type SessionState struct {
	Token          string
	DeviceID       string
	ExpiresAt      time.Time // zero when the provider gave no expiry
	Entitlements   string    // empty when absent
	StoredPassword string    // empty unless password saving is enabled
	Username       string
	UserID         string
	ProfileID      string
	ProfileName    string
	ProfileIcon    string
	ProfileKids    bool
}

// LoggedIn reports whether a token is held.
func (s SessionState) LoggedIn() bool {
	return s.Token != ""
}

// Expired reports whether the stored expiry is known and not in the future.
func (s SessionState) Expired(now time.Time) bool {
	return s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// DeviceIdentity is recomputed for every login attempt.
type DeviceIdentity struct {
	RawLabel string
	HashedID string
	Nickname string
}

// Device is a registered device reported back in a device-limit conflict.
type Device struct {
	ID       string
	Nickname string
}

// StreamCandidate is one manifest variant offered for an asset.
type StreamCandidate struct {
	Profile string
	URL     string
}

// PlaybackLock is a concurrency lock held while a stream plays.
type PlaybackLock struct {
	ID            string
	SequenceToken string
}

// PlaybackConfig is a provider's raw playback answer before selection.
type PlaybackConfig struct {
	ErrorCode    string
	ErrorMessage string
	Variants     []StreamCandidate
	LicenseURL   string
	KeyID        string
	Lock         *PlaybackLock
	Metadata     map[string]any
}

// Failed reports whether the provider declined the request.
func (c *PlaybackConfig) Failed() bool {
	return c.ErrorCode != "" || c.ErrorMessage != ""
}

// DRM carries license parameters for an encrypted stream.
type DRM struct {
	Scheme     string
	LicenseURL string
	KeyID      string
	InitData   string // base64 PSSH box, empty when no key id was given
}

// Playback is a resolved, playable stream.
type Playback struct {
	URL      string
	Profile  string
	DRM      *DRM
	Metadata map[string]any
}

// SignedRequest is a parameter set and its signature.
type SignedRequest struct {
	Params    map[string]string
	Signature string
}
