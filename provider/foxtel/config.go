package foxtel

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/ytget/streamsession/stream"
)

// Name is the provider name used for store namespaces and metrics.
const Name = "foxtel"

// Asset types accepted by PlaybackConfig and Asset.
const (
	TypeVOD  = "vod"
	TypeLive = "live"
)

// Default endpoints and identifiers. All are overridable through Config.
const (
	DefaultAPIURL      = "https://foxtel-go-sw.foxtelplayer.foxtel.com.au/now-mobile-140/api"
	DefaultPlaybackURL = "https://foxtel-go-sw.foxtelplayer.foxtel.com.au"
	DefaultBundleURL   = "https://foxtel-go-sw.foxtelplayer.foxtel.com.au/now-mobile-140/api/bundle.class.api.php/GOgetBundles/303"
	DefaultSearchURL   = "https://foxtel-prod-elb.digitalsmiths.net/sd/foxtel/taps/assets/search/prefix"
	DefaultAESIV       = "b2d40461b54d81c8c6df546051370328"
	DefaultAppID       = "PLAY2"
	DefaultPlatform    = "andr_phone"
	DefaultVODSiteID   = "303"
	DefaultLiveSiteID  = "302"
)

const (
	playbackAppID   = "PLAY2"
	deviceCapsSalt  = "TR3V0RwAZH3r3L00kingA7SumStuFF"
	deviceCapsLevel = "L1"
)

// DefaultStreamPriority ranks the profiles returned by the playback config.
var DefaultStreamPriority = stream.PriorityTable{
	"WIREDHD":   16,
	"WIREDHIGH": 15,
	"WIFIHD":    14,
	"WIFIHIGH":  13,
	"FULL":      12,
	"HIGH":      11,
	"MEDIUM":    10,
	"LOW":       9,

	stream.DefaultKey: 0,
}

// TrackingMarker is removed from playback URLs; streams fail to start with it.
const TrackingMarker = "cm=yes&"

// Config holds the provider constants.
type Config struct {
	APIURL      string
	PlaybackURL string
	BundleURL   string
	SearchURL   string
	AESIV       string
	AppID       string
	Platform    string
	VODSiteID   string
	LiveSiteID  string

	// IDTemplate and NameTemplate build the device id and nickname.
	IDTemplate   string
	NameTemplate string

	// LegacyMode uses the mobile playback endpoint instead of the set-top box one.
	LegacyMode bool

	StreamPriority stream.PriorityTable
	Headers        map[string]string
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		PlaybackURL:    DefaultPlaybackURL,
		BundleURL:      DefaultBundleURL,
		SearchURL:      DefaultSearchURL,
		AESIV:          DefaultAESIV,
		AppID:          DefaultAppID,
		Platform:       DefaultPlatform,
		VODSiteID:      DefaultVODSiteID,
		LiveSiteID:     DefaultLiveSiteID,
		StreamPriority: DefaultStreamPriority,
	}
}

// withDefaults fills empty fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	set := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	set(&c.APIURL, d.APIURL)
	set(&c.PlaybackURL, d.PlaybackURL)
	set(&c.BundleURL, d.BundleURL)
	set(&c.SearchURL, d.SearchURL)
	set(&c.AESIV, d.AESIV)
	set(&c.AppID, d.AppID)
	set(&c.Platform, d.Platform)
	set(&c.VODSiteID, d.VODSiteID)
	set(&c.LiveSiteID, d.LiveSiteID)
	if c.StreamPriority == nil {
		c.StreamPriority = d.StreamPriority
	}
	return c
}

// siteID maps an asset type to its catalog site.
func (c Config) siteID(assetType string) string {
	if assetType == TypeVOD {
		return c.VODSiteID
	}
	return c.LiveSiteID
}

// DeviceCaps is the capability hash sent with playback requests.
func DeviceCaps() string {
	sum := md5.Sum([]byte(deviceCapsSalt + deviceCapsLevel))
	return hex.EncodeToString(sum[:])
}
