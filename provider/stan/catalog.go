package stan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/stream"
	"github.com/ytget/streamsession/types"
)

// SearchPageSize is the number of results per search page.
const SearchPageSize = 50

// Catalog exposes the Stan catalog, profile and history endpoints. Every
// call first makes sure the session is valid.
type Catalog struct {
	p        *Provider
	sessions stream.Sessions
}

// NewCatalog binds the provider to a session.
func (p *Provider) NewCatalog(sessions stream.Sessions) *Catalog {
	return &Catalog{p: p, sessions: sessions}
}

func (c *Catalog) state(ctx context.Context) (types.SessionState, error) {
	if err := c.sessions.EnsureValidSession(ctx, false); err != nil {
		return types.SessionState{}, err
	}
	return c.sessions.Snapshot(ctx)
}

func (c *Catalog) do(ctx context.Context, method, path string, params, form url.Values) (json.RawMessage, error) {
	resp, err := c.p.http.Do(ctx, method, path, params, form)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := resp.JSON(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Catalog) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// URL fetches a catalog feed path with the artwork feeds expanded.
func (c *Catalog) URL(ctx context.Context, path string) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"feedTypes": {"posters,landscapes,hero"},
		"jwToken":   {s.Token},
	}
	return c.get(ctx, path, params)
}

// Page fetches a named page such as "sitemap" or "home".
func (c *Catalog) Page(ctx context.Context, key string) (json.RawMessage, error) {
	return c.URL(ctx, "/pages/v6/"+url.PathEscape(key)+".json")
}

// NavItems returns the sitemap browse row whose path is "/"+key, or nil.
func (c *Catalog) NavItems(ctx context.Context, key string) ([]json.RawMessage, error) {
	raw, err := c.Page(ctx, "sitemap")
	if err != nil {
		return nil, err
	}
	var sitemap struct {
		Navs struct {
			Browse []struct {
				Path  string            `json:"path"`
				Items []json.RawMessage `json:"items"`
			} `json:"browse"`
		} `json:"navs"`
	}
	if err := json.Unmarshal(raw, &sitemap); err != nil {
		return nil, errs.Transport("decode sitemap", err)
	}
	for _, row := range sitemap.Navs.Browse {
		if row.Path == "/"+key {
			return row.Items, nil
		}
	}
	return nil, nil
}

// Search runs a catalog search. page starts at 1. Kids profiles search the
// kids catalog.
func (c *Catalog) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"q":       {query},
		"limit":   {strconv.Itoa(SearchPageSize)},
		"offset":  {strconv.Itoa((page - 1) * SearchPageSize)},
		"jwToken": {s.Token},
	}
	path := "/search/v12/search"
	if s.ProfileKids {
		path = "/search/v12/kids/search"
	}
	return c.get(ctx, path, params)
}

// Program fetches a program.
func (c *Catalog) Program(ctx context.Context, programID string) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	return c.p.program(ctx, s, programID)
}

// Watchlist returns the active profile's watchlist.
func (c *Catalog) Watchlist(ctx context.Context) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	path := "/watchlist/v1/users/" + url.PathEscape(s.UserID) + "/profiles/" + url.PathEscape(s.ProfileID) + "/watchlistitems"
	return c.get(ctx, path, url.Values{"jwToken": {s.Token}})
}

// History returns the active profile's watch history, optionally limited
// to a comma-separated list of program ids.
func (c *Catalog) History(ctx context.Context, programIDs string) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"jwToken": {s.Token},
		"limit":   {"100"},
	}
	if programIDs != "" {
		params.Set("programIds", programIDs)
	}
	path := "/history/v1/users/" + url.PathEscape(s.UserID) + "/profiles/" + url.PathEscape(s.ProfileID) + "/history"
	return c.get(ctx, path, params)
}

func profilesPath(userID string) string {
	return "/accounts/v1/users/" + url.PathEscape(userID) + "/profiles"
}

// Profiles lists the account's profiles.
func (c *Catalog) Profiles(ctx context.Context) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, profilesPath(s.UserID), url.Values{"jwToken": {s.Token}})
}

// AddProfile creates a profile with an icon from ProfileIcons.
func (c *Catalog) AddProfile(ctx context.Context, name, iconSet string, iconIndex int, kids bool) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"jwToken":       {s.Token},
		"name":          {name},
		"isKidsProfile": {strconv.FormatBool(kids)},
		"iconSet":       {iconSet},
		"iconIndex":     {strconv.Itoa(iconIndex)},
	}
	return c.do(ctx, http.MethodPost, profilesPath(s.UserID), nil, form)
}

// DeleteProfile removes a profile and reports whether the server accepted it.
func (c *Catalog) DeleteProfile(ctx context.Context, profileID string) (bool, error) {
	s, err := c.state(ctx)
	if err != nil {
		return false, err
	}
	params := url.Values{
		"jwToken":   {s.Token},
		"profileId": {profileID},
	}
	resp, err := c.p.http.Delete(ctx, profilesPath(s.UserID), params)
	if err != nil {
		return false, err
	}
	return resp.OK(), nil
}

// ProfileIcons lists the icon sets available for profiles.
func (c *Catalog) ProfileIcons(ctx context.Context) (json.RawMessage, error) {
	s, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "/accounts/v1/accounts/icons", url.Values{"jwToken": {s.Token}})
}
