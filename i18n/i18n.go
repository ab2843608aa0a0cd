// Package i18n renders user-facing messages from keyed catalogs.
package i18n

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Localizer formats a message by key, substituting {name} placeholders.
type Localizer interface {
	Format(key string, subs map[string]string) string
}

// Message keys.
const (
	LoginError       = "login_error"
	TokenError       = "token_error"
	PlaybackError    = "playback_error"
	NoStreamError    = "no_stream_error"
	DeregisterChoose = "deregister_choose"
	IPAddressError   = "ip_address_error"
	KidsPlayDenied   = "kids_play_denied"
	ConcurrencyError = "concurrency_error"
	NotLoggedIn      = "not_logged_in"
	UnlockFailed     = "unlock_failed"
)

// English is the fallback catalog.
var English = map[string]string{
	LoginError:       "Failed to login.\n{msg}",
	TokenError:       "Failed to refresh session, please login again.\n{msg}",
	PlaybackError:    "Failed to play stream.\n{msg}",
	NoStreamError:    "No playable stream was returned for this item.",
	DeregisterChoose: "Device limit reached. Select a device to deregister",
	IPAddressError:   "Playback is not available from your current location or network (VPN detected).",
	KidsPlayDenied:   "This content is not available on a kids profile.",
	ConcurrencyError: "Too many streams are playing on this account.",
	NotLoggedIn:      "You are not logged in.",
	UnlockFailed:     "Could not release the stream lock; playback may be blocked on other devices until it expires.",
}

// Catalog is a Localizer backed by per-language message maps.
type Catalog struct {
	mu        sync.RWMutex
	supported []language.Tag
	messages  []map[string]string
	active    int
}

// New returns a catalog holding English only.
func New() *Catalog {
	return &Catalog{
		supported: []language.Tag{language.English},
		messages:  []map[string]string{English},
	}
}

// Add registers or replaces messages for tag.
func (c *Catalog) Add(tag language.Tag, msgs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.supported {
		if t == tag {
			c.messages[i] = msgs
			return
		}
	}
	c.supported = append(c.supported, tag)
	c.messages = append(c.messages, msgs)
}

// SetLanguage picks the best supported language for the preference list
// (BCP 47 tags or Accept-Language strings) and returns it.
func (c *Catalog) SetLanguage(preferred ...string) language.Tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	matcher := language.NewMatcher(c.supported)
	_, idx := language.MatchStrings(matcher, preferred...)
	c.active = idx
	return c.supported[idx]
}

// Language returns the active language.
func (c *Catalog) Language() language.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supported[c.active]
}

// Format implements Localizer. Unknown keys fall back to English, then to
// the key itself.
func (c *Catalog) Format(key string, subs map[string]string) string {
	c.mu.RLock()
	msg, ok := c.messages[c.active][key]
	c.mu.RUnlock()
	if !ok {
		if msg, ok = English[key]; !ok {
			msg = key
		}
	}
	return Substitute(msg, subs)
}

// Substitute replaces {name} placeholders. Unmatched placeholders are left
// in place.
func Substitute(msg string, subs map[string]string) string {
	if len(subs) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(subs)*2)
	for k, v := range subs {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(msg))
}
