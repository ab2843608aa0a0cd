package foxtel

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/streamsession/client"
	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/session"
	"github.com/ytget/streamsession/stream"
	"github.com/ytget/streamsession/types"
)

// epgFields are the listing fields requested from the EPG.
var epgFields = []string{
	"EventTitle", "ShortSynopsis", "StartTimeUTC", "EndTimeUTC",
	"RawStartTimeUTC", "RawEndTimeUTC", "ProgramTitle", "EpisodeTitle",
	"Genre", "HighDefinition", "ClosedCaption", "EpisodeNumber",
	"SeriesNumber", "ParentalRating", "MergedShortSynopsis",
}

// Catalog exposes the read-only Foxtel endpoints. Every call first makes
// sure the session is valid.
type Catalog struct {
	p        *Provider
	sessions stream.Sessions
	now      func() time.Time
}

// NewCatalog binds the provider to a session.
func (p *Provider) NewCatalog(sessions stream.Sessions) *Catalog {
	return &Catalog{p: p, sessions: sessions, now: time.Now}
}

func (c *Catalog) state(ctx context.Context) (types.SessionState, error) {
	if err := c.sessions.EnsureValidSession(ctx, false); err != nil {
		return types.SessionState{}, err
	}
	return c.sessions.Snapshot(ctx)
}

// entitlementParams returns the common parameters of entitlement-gated calls.
func (c *Catalog) entitlementParams(s types.SessionState) url.Values {
	params := url.Values{
		"plt":    {c.p.cfg.Platform},
		"appID":  {c.p.cfg.AppID},
		"format": {"json"},
	}
	if tok, ok := session.EntitlementToken(s.Entitlements); ok {
		params.Set("entitlementToken", tok)
	}
	return params
}

func (c *Catalog) getJSON(ctx context.Context, path string, params url.Values, opts ...client.RequestOption) (json.RawMessage, error) {
	resp, err := c.p.http.Get(ctx, path, params, opts...)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := resp.JSON(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Assets lists VOD assets of a category type, newest first.
func (c *Catalog) Assets(ctx context.Context, assetType, filter string, showAll bool) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	params := c.entitlementParams(s)
	params.Set("showall", strconv.FormatBool(showAll))
	params.Set("sort", "latest")
	if filter != "" {
		params.Set("filters", filter)
	}
	path := "/categoryTree.class.api.php/GOgetAssets/" + c.p.cfg.VODSiteID + "/" + url.PathEscape(assetType)
	return c.getJSON(ctx, path, params, client.WithTimeout(client.HeavyTimeout))
}

// LiveChannels lists live channels.
func (c *Catalog) LiveChannels(ctx context.Context, filter string) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	params := c.entitlementParams(s)
	if filter != "" {
		params.Set("filter", filter)
	}
	return c.getJSON(ctx, "/categoryTree.class.api.php/GOgetLiveChannels/"+c.p.cfg.LiveSiteID, params)
}

func (c *Catalog) assetParams() url.Values {
	return url.Values{
		"plt":    {c.p.cfg.Platform},
		"appID":  {c.p.cfg.AppID},
		"format": {"json"},
	}
}

// Show returns a show with its child assets.
func (c *Catalog) Show(ctx context.Context, showID string) (json.RawMessage, error) {
	if _, err := c.state(ctx); err != nil {
		return nil, err
	}
	params := c.assetParams()
	params.Set("showId", showID)
	return c.getJSON(ctx, "/asset.class.api.php/GOgetAssetData/"+c.p.cfg.VODSiteID+"/0", params)
}

// Asset returns a single VOD or live asset.
func (c *Catalog) Asset(ctx context.Context, assetType, id string) (json.RawMessage, error) {
	if _, err := c.state(ctx); err != nil {
		return nil, err
	}
	path := "/asset.class.api.php/GOgetAssetData/" + c.p.cfg.siteID(assetType) + "/" + url.PathEscape(id)
	return c.getJSON(ctx, path, c.assetParams())
}

// Bundle returns the channel bundles of the account.
func (c *Catalog) Bundle(ctx context.Context, mode string) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	params := c.entitlementParams(s)
	params.Set("apiVersion", "2")
	params.Set("filter", "")
	params.Set("mode", mode)
	return c.getJSON(ctx, c.p.cfg.BundleURL, params)
}

// SyncToken returns the sync token for a site catalog, or "" when the
// account has none. The session is always refreshed first.
func (c *Catalog) SyncToken(ctx context.Context, siteID, catalogName string) (string, error) {
	if err := c.sessions.EnsureValidSession(ctx, true); err != nil {
		return "", err
	}
	s, err := c.sessions.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"appID":  {c.p.cfg.AppID},
		"format": {"json"},
	}
	form := url.Values{
		"loginToken": {s.Token},
		"deviceId":   {s.DeviceID},
	}
	resp, err := c.p.http.Post(ctx, "/userCatalog.class.api.php/getSyncTokens/"+c.p.cfg.VODSiteID, params, form)
	if err != nil {
		return "", err
	}
	var out struct {
		Tokens []struct {
			SiteID      string `json:"siteId"`
			CatalogName string `json:"catalogName"`
			Token       string `json:"token"`
		} `json:"tokens"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	for _, t := range out.Tokens {
		if t.SiteID == siteID && t.CatalogName == catalogName {
			return t.Token, nil
		}
	}
	return "", nil
}

// UserCatalog returns a personal carousel such as a watchlist. It returns
// nil when there is no sync token for the catalog.
func (c *Catalog) UserCatalog(ctx context.Context, catalogName, siteID string) (json.RawMessage, error) {
	if siteID == "" {
		siteID = c.p.cfg.VODSiteID
	}
	token, err := c.SyncToken(ctx, siteID, catalogName)
	if err != nil || token == "" {
		return nil, err
	}
	params := url.Values{
		"syncToken": {token},
		"platform":  {c.p.cfg.Platform},
		"appID":     {c.p.cfg.AppID},
		"limit":     {"100"},
		"format":    {"json"},
	}
	path := "/userCatalog.class.api.php/getCarousel/" + siteID + "/" + url.PathEscape(catalogName)
	return c.getJSON(ctx, path, params)
}

// EPG returns channel listings. A zero start is two hours ago; a zero end
// is one day after start.
func (c *Catalog) EPG(ctx context.Context, channelCodes []string, start, end time.Time) (json.RawMessage, error) {
	if _, err := c.state(ctx); err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = c.now().UTC().Add(-2 * time.Hour)
	}
	if end.IsZero() {
		end = start.AddDate(0, 0, 1)
	}
	params := url.Values{
		"filter_starttime": {strconv.FormatInt(start.Unix(), 10)},
		"filter_endtime":   {strconv.FormatInt(end.Unix(), 10)},
		"filter_channels":  {strings.Join(channelCodes, ",")},
		"filter_fields":    {strings.Join(epgFields, ",")},
		"format":           {"json"},
	}
	return c.getJSON(ctx, "/epg.class.api.php/getChannelListings/"+c.p.cfg.LiveSiteID, params)
}

// Search types.
const (
	SearchVOD    = "VOD"
	SearchLinear = "LINEAR"
)

// Search queries the search service. searchType is SearchVOD or SearchLinear.
func (c *Catalog) Search(ctx context.Context, query, searchType string) (json.RawMessage, error) {
	if _, err := c.state(ctx); err != nil {
		return nil, err
	}
	if searchType == "" {
		searchType = SearchVOD
	}
	prod, idm := "FOXTELGO", "02"
	if c.p.cfg.AppID == "PLAY2" {
		prod, idm = "FOXTELNOW", "04"
	}
	params := url.Values{
		"prod":      {prod},
		"idm":       {idm},
		"BLOCKED":   {"YES"},
		"fx":        {`"` + query + `"`},
		"sfx":       {"type:" + searchType},
		"limit":     {"100"},
		"offset":    {"0"},
		"dpg":       {"R18+"},
		"ao":        {"N"},
		"dopt":      {"[F0:11]"},
		"hwid":      {"_"},
		"REGION":    {"_"},
		"utcOffset": {"+1200"},
		"swver":     {"3.3.7"},
		"aid":       {"_"},
		"fxid":      {"_"},
		"rid":       {"SEARCH5"},
	}
	return c.getJSON(ctx, c.p.cfg.SearchURL, params)
}

type assetNode struct {
	ProgramID   string `json:"programId"`
	ChildAssets *struct {
		Items []json.RawMessage `json:"items"`
	} `json:"childAssets"`
}

// AssetForProgram finds the asset of a program within a show, looking at
// the show itself, its children and their children. It returns nil when
// there is no match.
func (c *Catalog) AssetForProgram(ctx context.Context, showID, programID string) (json.RawMessage, error) {
	raw, err := c.Show(ctx, showID)
	if err != nil {
		return nil, err
	}
	var show assetNode
	if err := json.Unmarshal(raw, &show); err != nil {
		return nil, errs.Transport("decode show", err)
	}
	if show.ProgramID == programID {
		return raw, nil
	}
	if show.ChildAssets == nil {
		return nil, nil
	}
	for _, childRaw := range show.ChildAssets.Items {
		var child assetNode
		if err := json.Unmarshal(childRaw, &child); err != nil {
			continue
		}
		if child.ProgramID == programID {
			return childRaw, nil
		}
		if child.ChildAssets == nil {
			return nil, nil
		}
		for _, subRaw := range child.ChildAssets.Items {
			var sub assetNode
			if err := json.Unmarshal(subRaw, &sub); err == nil && sub.ProgramID == programID {
				return subRaw, nil
			}
		}
	}
	return nil, nil
}
