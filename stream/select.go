// Package stream turns a provider's playback configuration into a single
// playable URL plus DRM parameters.
package stream

import (
	"sort"
	"strings"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/types"
)

// DefaultKey names the priority given to profiles missing from a table.
const DefaultKey = "DEFAULT"

// PriorityTable ranks stream profiles. Higher wins.
type PriorityTable map[string]int

// Priority returns the rank of profile, matched case-insensitively.
// Unknown profiles get the DEFAULT entry, or 0 when there is none.
func (t PriorityTable) Priority(profile string) int {
	if p, ok := t[profile]; ok {
		return p
	}
	key := strings.ToUpper(strings.TrimSpace(profile))
	for k, p := range t {
		if strings.ToUpper(k) == key {
			return p
		}
	}
	return t[DefaultKey]
}

// Rank returns a copy of variants ordered best first. Ties keep list order.
func (t PriorityTable) Rank(variants []types.StreamCandidate) []types.StreamCandidate {
	out := make([]types.StreamCandidate, len(variants))
	copy(out, variants)
	sort.SliceStable(out, func(i, j int) bool {
		return t.Priority(out[i].Profile) > t.Priority(out[j].Profile)
	})
	return out
}

// SelectVariant returns the highest ranked variant. An empty list is a
// NO_STREAM error.
func SelectVariant(variants []types.StreamCandidate, table PriorityTable) (types.StreamCandidate, error) {
	if len(variants) == 0 {
		return types.StreamCandidate{}, errs.New(errs.KindNoStream, "no stream variants returned")
	}
	return table.Rank(variants)[0], nil
}

// StripMarker removes every occurrence of marker from rawURL.
func StripMarker(rawURL, marker string) string {
	if marker == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, marker, "")
}
