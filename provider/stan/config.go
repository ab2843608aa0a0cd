package stan

import (
	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/i18n"
	"github.com/ytget/streamsession/stream"
)

// Name is the provider name used for store namespaces and metrics.
const Name = "stan"

// TypeProgram is the only asset type Stan plays.
const TypeProgram = "program"

const (
	DefaultAPIURL      = "https://api.stan.com.au"
	DefaultStanVersion = "4.32.1"
	DefaultLicenseURL  = "https://lic.drmtoday.com/license-proxy-widevine/cenc/"
	DefaultQuality     = "high"

	clientName = "Stan-Android"
	clientType = "mobile"
	clientOS   = "Android"
	lockScheme = "STAN"
)

// Provider error codes.
const (
	CodeVPNDetected      = "Streamco.Login.VPNDetected"
	CodeOutOfRegion      = "Streamco.Concurrency.OutOfRegion"
	CodeNotSafeForKids   = "Streamco.Catalogue.NOT_SAFE_FOR_KIDS"
	CodeConcurrencyLimit = "Streamco.Concurrency.MaxStreamsReached"
)

// playbackErrors maps playback error codes to reasons.
var playbackErrors = map[string]stream.ErrorMapping{
	CodeOutOfRegion:      {Reason: errs.ErrOutOfRegion, MessageKey: i18n.IPAddressError},
	CodeNotSafeForKids:   {Reason: errs.ErrKidsDenied, MessageKey: i18n.KidsPlayDenied},
	CodeConcurrencyLimit: {Reason: errs.ErrConcurrencyLimit, MessageKey: i18n.ConcurrencyError},
}

// Config holds the provider constants.
type Config struct {
	APIURL      string
	StanVersion string
	LicenseURL  string
	Quality     string
	Headers     map[string]string
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		APIURL:      DefaultAPIURL,
		StanVersion: DefaultStanVersion,
		LicenseURL:  DefaultLicenseURL,
		Quality:     DefaultQuality,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.APIURL == "" {
		c.APIURL = d.APIURL
	}
	if c.StanVersion == "" {
		c.StanVersion = d.StanVersion
	}
	if c.LicenseURL == "" {
		c.LicenseURL = d.LicenseURL
	}
	if c.Quality == "" {
		c.Quality = d.Quality
	}
	return c
}
