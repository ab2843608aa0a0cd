package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/types"
)

func TestSelectVariant(t *testing.T) {
	table := PriorityTable{"HIGH": 3, "MED": 2, "LOW": 1, DefaultKey: 0}

	tests := []struct {
		name     string
		variants []types.StreamCandidate
		want     string
	}{
		{
			name:     "highest wins",
			variants: []types.StreamCandidate{{Profile: "LOW", URL: "l"}, {Profile: "HIGH", URL: "h"}, {Profile: "MED", URL: "m"}},
			want:     "h",
		},
		{
			name:     "case insensitive",
			variants: []types.StreamCandidate{{Profile: "med", URL: "m"}, {Profile: "low", URL: "l"}},
			want:     "m",
		},
		{
			name:     "ties keep order",
			variants: []types.StreamCandidate{{Profile: "HIGH", URL: "first"}, {Profile: "HIGH", URL: "second"}},
			want:     "first",
		},
		{
			name:     "unknown is lowest",
			variants: []types.StreamCandidate{{Profile: "WEIRD", URL: "w"}, {Profile: "LOW", URL: "l"}},
			want:     "l",
		},
		{
			name:     "only unknown",
			variants: []types.StreamCandidate{{Profile: "A", URL: "a"}, {Profile: "B", URL: "b"}},
			want:     "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectVariant(tt.variants, table)
			if err != nil {
				t.Fatal(err)
			}
			if got.URL != tt.want {
				t.Errorf("got %q, want %q", got.URL, tt.want)
			}
		})
	}

	if _, err := SelectVariant(nil, table); !errs.IsNoStream(err) {
		t.Errorf("empty list: err = %v", err)
	}
}

func TestStripMarker(t *testing.T) {
	cases := []struct {
		url, marker, want string
	}{
		{"https://cdn/x.mpd?cm=yes&a=1&cm=yes&", "cm=yes&", "https://cdn/x.mpd?a=1&"},
		{"https://cdn/x.mpd?cm=yes&a=1", "cm=yes&", "https://cdn/x.mpd?a=1"},
		{"https://cdn/x.mpd?a=1", "cm=yes&", "https://cdn/x.mpd?a=1"},
		{"u", "", "u"},
	}
	for _, tc := range cases {
		if got := StripMarker(tc.url, tc.marker); got != tc.want {
			t.Errorf("StripMarker(%q, %q) = %q (want %q)", tc.url, tc.marker, got, tc.want)
		}
	}
}

func TestInitData(t *testing.T) {
	const want = "AAAAMnBzc2gAAAAA7e+LqXnWSs6jyCfc1R0h7QAAABISEAEjRWeJq83vASNFZ4mrze8="
	for _, kid := range []string{
		"01234567-89ab-cdef-0123-456789abcdef",
		"0123456789ABCDEF0123456789ABCDEF",
	} {
		got, err := InitData(kid)
		if err != nil {
			t.Fatalf("InitData(%q): %v", kid, err)
		}
		if got != want {
			t.Errorf("InitData(%q) = %s", kid, got)
		}
	}
	if _, err := InitData("not-hex"); err == nil {
		t.Error("expected error for non-hex key id")
	}
	if _, err := InitData(""); err == nil {
		t.Error("expected error for empty key id")
	}
}

type fakeSessions struct {
	forced []bool
	err    error
}

func (f *fakeSessions) EnsureValidSession(_ context.Context, force bool) error {
	f.forced = append(f.forced, force)
	return f.err
}

func (f *fakeSessions) Snapshot(context.Context) (types.SessionState, error) {
	return types.SessionState{Token: "tok"}, nil
}

type fakeSource struct {
	cfg       *types.PlaybackConfig
	err       error
	unlockErr error
	unlocked  []types.PlaybackLock
}

func (f *fakeSource) PlaybackConfig(_ context.Context, s types.SessionState, _, _ string) (*types.PlaybackConfig, error) {
	if s.Token != "tok" {
		return nil, errors.New("state not passed through")
	}
	return f.cfg, f.err
}

func (f *fakeSource) Unlock(_ context.Context, _ types.SessionState, l types.PlaybackLock) error {
	f.unlocked = append(f.unlocked, l)
	return f.unlockErr
}

var testProfile = Profile{
	Provider:       "test",
	Priority:       PriorityTable{"HIGH": 3, "LOW": 1},
	TrackingMarker: "cm=yes&",
	Errors: map[string]ErrorMapping{
		"OutOfRegion": {Reason: errs.ErrOutOfRegion, MessageKey: "ip_address_error"},
	},
}

func TestResolve(t *testing.T) {
	sessions := &fakeSessions{}
	src := &fakeSource{cfg: &types.PlaybackConfig{
		Variants: []types.StreamCandidate{
			{Profile: "LOW", URL: "https://cdn/low.mpd"},
			{Profile: "HIGH", URL: "https://cdn/high.mpd?cm=yes&t=1"},
		},
		LicenseURL: "https://lic",
		KeyID:      "01234567-89ab-cdef-0123-456789abcdef",
		Lock:       &types.PlaybackLock{ID: "L1", SequenceToken: "S1"},
	}}
	r := NewResolver(sessions, src, testProfile)

	pb, err := r.Resolve(context.Background(), "vod", "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions.forced) != 1 || !sessions.forced[0] {
		t.Errorf("EnsureValidSession calls = %v, want one forced", sessions.forced)
	}
	if pb.URL != "https://cdn/high.mpd?t=1" || pb.Profile != "HIGH" {
		t.Errorf("playback = %+v", pb)
	}
	if pb.DRM == nil || pb.DRM.Scheme != DefaultScheme || pb.DRM.LicenseURL != "https://lic" || pb.DRM.InitData == "" {
		t.Errorf("DRM = %+v", pb.DRM)
	}
	if len(src.unlocked) != 1 || src.unlocked[0].ID != "L1" {
		t.Errorf("unlocked = %+v", src.unlocked)
	}
}

func TestResolve_UnlockFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{
		cfg: &types.PlaybackConfig{
			Variants: []types.StreamCandidate{{Profile: "HIGH", URL: "u"}},
			Lock:     &types.PlaybackLock{ID: "L1"},
		},
		unlockErr: errors.New("503"),
	}
	pb, err := NewResolver(&fakeSessions{}, src, testProfile).Resolve(context.Background(), "vod", "1")
	if err != nil {
		t.Fatalf("unlock failure leaked: %v", err)
	}
	if pb.URL != "u" || pb.DRM != nil {
		t.Errorf("playback = %+v", pb)
	}
}

func TestResolve_Errors(t *testing.T) {
	sessionErr := errs.New(errs.KindSessionExpired, "gone")
	tests := []struct {
		name     string
		sessions *fakeSessions
		src      *fakeSource
		check    func(error) bool
		contains string
	}{
		{
			name:     "session expired",
			sessions: &fakeSessions{err: sessionErr},
			src:      &fakeSource{},
			check:    errs.IsSessionExpired,
		},
		{
			name:     "mapped code",
			sessions: &fakeSessions{},
			src:      &fakeSource{cfg: &types.PlaybackConfig{ErrorCode: "OutOfRegion", ErrorMessage: "raw"}},
			check:    func(err error) bool { return errs.IsPlayback(err) && errors.Is(err, errs.ErrOutOfRegion) },
			contains: "VPN detected",
		},
		{
			name:     "unmapped code keeps raw message",
			sessions: &fakeSessions{},
			src:      &fakeSource{cfg: &types.PlaybackConfig{ErrorCode: "X", ErrorMessage: "Asset unavailable"}},
			check:    errs.IsPlayback,
			contains: "Asset unavailable",
		},
		{
			name:     "empty variants",
			sessions: &fakeSessions{},
			src:      &fakeSource{cfg: &types.PlaybackConfig{}},
			check:    errs.IsNoStream,
		},
		{
			name:     "transport",
			sessions: &fakeSessions{},
			src:      &fakeSource{err: errs.Transport("playback config", errors.New("reset"))},
			check:    errs.IsTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.sessions, tt.src, testProfile).Resolve(context.Background(), "vod", "1")
			if err == nil || !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(errs.New(errs.KindNoStream, "x")) {
		t.Error("NO_STREAM should be terminal")
	}
	if IsTerminal(errs.Transport("x", errors.New("y"))) {
		t.Error("TRANSPORT should not be terminal")
	}
}
