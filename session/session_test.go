package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/prompt"
	"github.com/ytget/streamsession/store"
	"github.com/ytget/streamsession/types"
)

type fakeProvider struct {
	logins    []Credentials
	refreshes []RefreshRequest

	login   func(Credentials) (Grant, error)
	refresh func(RefreshRequest) (Grant, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Login(_ context.Context, c Credentials) (Grant, error) {
	f.logins = append(f.logins, c)
	return f.login(c)
}

func (f *fakeProvider) Refresh(_ context.Context, r RefreshRequest) (Grant, error) {
	f.refreshes = append(f.refreshes, r)
	if f.refresh == nil {
		return Grant{}, errors.New("refresh not expected")
	}
	return f.refresh(r)
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(p Provider, opts Options) (*Manager, *store.Memory) {
	st := store.NewMemory()
	opts.Now = func() time.Time { return testNow }
	return New(p, st, opts), st
}

func okLogin(Credentials) (Grant, error) {
	return Grant{
		Token:        "tok-1",
		DeviceID:     "dev-1",
		Entitlements: "ENT-A,ENT-B",
		ExpiresAt:    testNow.Add(time.Hour),
	}, nil
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{login: okLogin}
	m, _ := newTestManager(p, Options{})

	if err := m.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if m.State() != Active {
		t.Errorf("State = %v, want active", m.State())
	}
	s, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != "tok-1" || s.DeviceID != "dev-1" || s.Username != "alice" {
		t.Errorf("unexpected state: %+v", s)
	}
	if s.StoredPassword != "" {
		t.Error("password stored without SavePassword")
	}
	if !s.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", s.ExpiresAt)
	}
}

func TestLogin_SavePassword(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(&fakeProvider{login: okLogin}, Options{SavePassword: true})
	if err := m.Login(ctx, "alice", "secret"); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Snapshot(ctx)
	if s.StoredPassword != "secret" {
		t.Errorf("StoredPassword = %q", s.StoredPassword)
	}
}

func TestLogin_ClearsPreviousSession(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{login: func(Credentials) (Grant, error) {
		return Grant{}, &RejectedError{Message: "bad password"}
	}}
	m, st := newTestManager(p, Options{})
	_ = st.Set(ctx, KeyToken, "old")
	_ = st.Set(ctx, KeyEntitlements, "OLD")

	err := m.Login(ctx, "alice", "wrong")
	if !errs.IsAuthentication(err) {
		t.Fatalf("err = %v, want AUTHENTICATION", err)
	}
	if st.Len() != 0 {
		t.Errorf("store not cleared: %d keys left", st.Len())
	}
	if m.State() != LoggedOut {
		t.Errorf("State = %v", m.State())
	}
}

func TestLogin_RejectedMessageKey(t *testing.T) {
	p := &fakeProvider{login: func(Credentials) (Grant, error) {
		return Grant{}, &RejectedError{Code: "VPN", Message: "raw", MessageKey: "ip_address_error", Reason: errs.ErrIPAddress}
	}}
	m, _ := newTestManager(p, Options{})

	err := m.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, errs.ErrIPAddress) {
		t.Errorf("reason not preserved: %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != "VPN" {
		t.Fatalf("err = %#v", err)
	}
	if e.Message == "" || e.Message == "raw" {
		t.Errorf("message not localized: %q", e.Message)
	}
}

func TestLogin_DeviceConflict(t *testing.T) {
	devices := []types.Device{{ID: "d1", Nickname: "TV"}, {ID: "d2", Nickname: "Phone"}}
	conflict := func(c Credentials) (Grant, error) {
		if c.KickDevice == "" {
			return Grant{}, &ConflictError{Message: "limit", Devices: devices}
		}
		return okLogin(c)
	}

	tests := []struct {
		name      string
		prompt    prompt.Prompt
		login     func(Credentials) (Grant, error)
		wantErr   bool
		wantCalls int
		wantKick  string
	}{
		{"choose second", prompt.Fixed(1), conflict, false, 2, "d2"},
		{"cancel", prompt.Fixed(prompt.Cancelled), conflict, true, 1, ""},
		{"no prompt", nil, conflict, true, 1, ""},
		{
			name:   "conflict again after kick",
			prompt: prompt.Fixed(0),
			login: func(Credentials) (Grant, error) {
				return Grant{}, &ConflictError{Message: "limit", Devices: devices}
			},
			wantErr:   true,
			wantCalls: 2,
			wantKick:  "d1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{login: tt.login}
			m, _ := newTestManager(p, Options{Prompt: tt.prompt})
			err := m.Login(context.Background(), "alice", "pw")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errs.IsAuthentication(err) {
				t.Errorf("err kind = %v", errs.KindOf(err))
			}
			if len(p.logins) != tt.wantCalls {
				t.Fatalf("provider called %d times, want %d", len(p.logins), tt.wantCalls)
			}
			if got := p.logins[len(p.logins)-1].KickDevice; got != tt.wantKick {
				t.Errorf("KickDevice = %q, want %q", got, tt.wantKick)
			}
		})
	}
}

func TestLogin_PresetKickSkipsPrompt(t *testing.T) {
	asked := false
	p := &fakeProvider{login: func(c Credentials) (Grant, error) {
		return Grant{}, &ConflictError{Devices: []types.Device{{ID: "d1"}}}
	}}
	m, _ := newTestManager(p, Options{Prompt: prompt.Func(func(string, []string) int {
		asked = true
		return 0
	})})
	if err := m.LoginWithKick(context.Background(), "alice", "pw", "d9"); err == nil {
		t.Fatal("expected error")
	}
	if asked || len(p.logins) != 1 {
		t.Errorf("asked=%v calls=%d", asked, len(p.logins))
	}
}

func TestLogin_JWTExpiryFallback(t *testing.T) {
	exp := testNow.Add(2 * time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	p := &fakeProvider{login: func(Credentials) (Grant, error) {
		return Grant{Token: tok}, nil
	}}
	m, _ := newTestManager(p, Options{})
	ctx := context.Background()
	if err := m.Login(ctx, "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Snapshot(ctx)
	if want := exp.Add(-expirySkew); !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, want)
	}
}

func TestLogin_EmptyTokenFails(t *testing.T) {
	p := &fakeProvider{login: func(Credentials) (Grant, error) { return Grant{DeviceID: "d"}, nil }}
	m, st := newTestManager(p, Options{})
	if err := m.Login(context.Background(), "alice", "pw"); !errs.IsAuthentication(err) {
		t.Fatalf("err = %v", err)
	}
	if v, ok, _ := st.Get(context.Background(), KeyToken); ok {
		t.Errorf("token written: %q", v)
	}
}

func seed(t *testing.T, st store.Store, s types.SessionState) {
	t.Helper()
	if err := saveState(context.Background(), st, s); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureValidSession_NotLoggedIn(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Options{})
	err := m.EnsureValidSession(context.Background(), true)
	if !errs.IsSessionExpired(err) || !errors.Is(err, errs.ErrNotLoggedIn) {
		t.Fatalf("err = %v", err)
	}
	if len(p.refreshes) != 0 {
		t.Error("provider contacted while logged out")
	}
}

func TestEnsureValidSession_FreshTokenSkipsRefresh(t *testing.T) {
	p := &fakeProvider{}
	m, st := newTestManager(p, Options{})
	seed(t, st, types.SessionState{Token: "t", ExpiresAt: testNow.Add(time.Minute)})

	if err := m.EnsureValidSession(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(p.refreshes) != 0 {
		t.Errorf("refreshed %d times", len(p.refreshes))
	}
}

func TestEnsureValidSession_RefreshMergesGrant(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{refresh: func(r RefreshRequest) (Grant, error) {
		return Grant{Token: "t2", ExpiresAt: testNow.Add(time.Hour)}, nil
	}}
	m, st := newTestManager(p, Options{})
	seed(t, st, types.SessionState{
		Token:        "t1",
		DeviceID:     "dev",
		Entitlements: "OLD",
		Username:     "alice",
		UserID:       "u1",
		ProfileID:    "p1",
		ProfileName:  "Alice",
	})

	// No expiry stored means a refresh on every call.
	if err := m.EnsureValidSession(ctx, false); err != nil {
		t.Fatal(err)
	}
	if len(p.refreshes) != 1 || p.refreshes[0].Token != "t1" || p.refreshes[0].Password != "" {
		t.Fatalf("refreshes = %+v", p.refreshes)
	}
	s, _ := m.Snapshot(ctx)
	if s.Token != "t2" || s.DeviceID != "dev" || s.UserID != "u1" || s.ProfileName != "Alice" {
		t.Errorf("merge lost fields: %+v", s)
	}
	if s.Entitlements != "" {
		t.Errorf("entitlements should be replaced, got %q", s.Entitlements)
	}
	if _, ok, _ := m.EntitlementToken(ctx); ok {
		t.Error("entitlement token present after entitlements dropped")
	}
}

func TestEnsureValidSession_RejectedClearsState(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{refresh: func(RefreshRequest) (Grant, error) {
		return Grant{}, &RejectedError{Code: "expired", Message: "token expired"}
	}}
	m, st := newTestManager(p, Options{})
	seed(t, st, types.SessionState{Token: "t1", DeviceID: "dev", Entitlements: "E"})

	err := m.EnsureValidSession(ctx, true)
	if !errs.IsSessionExpired(err) {
		t.Fatalf("err = %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("%d keys left after rejection", st.Len())
	}
	if m.State() != LoggedOut {
		t.Errorf("State = %v", m.State())
	}
}

func TestEnsureValidSession_TransportErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{refresh: func(RefreshRequest) (Grant, error) {
		return Grant{}, errs.Transport("refresh", errors.New("connection reset"))
	}}
	m, st := newTestManager(p, Options{})
	seed(t, st, types.SessionState{Token: "t1", DeviceID: "dev"})

	err := m.EnsureValidSession(ctx, true)
	if !errs.IsTransport(err) {
		t.Fatalf("err = %v", err)
	}
	if v, _, _ := st.Get(ctx, KeyToken); v != "t1" {
		t.Errorf("token = %q, want untouched", v)
	}
}

func TestEnsureValidSession_PasswordFallback(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{refresh: func(r RefreshRequest) (Grant, error) {
		if r.Password == "" {
			return Grant{}, &RejectedError{Message: "token expired"}
		}
		return Grant{Token: "t2", Entitlements: "E2"}, nil
	}}
	m, st := newTestManager(p, Options{SavePassword: true})
	seed(t, st, types.SessionState{Token: "t1", StoredPassword: "pw", Username: "alice"})

	if err := m.EnsureValidSession(ctx, true); err != nil {
		t.Fatal(err)
	}
	if len(p.refreshes) != 2 || p.refreshes[1].Password != "pw" {
		t.Fatalf("refreshes = %+v", p.refreshes)
	}
	s, _ := m.Snapshot(ctx)
	if s.Token != "t2" || s.StoredPassword != "pw" {
		t.Errorf("state = %+v", s)
	}
}

func TestSelectProfile(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{refresh: func(r RefreshRequest) (Grant, error) {
		switch r.ProfileID {
		case "":
			return Grant{Token: "t3", ExpiresAt: testNow.Add(time.Hour)}, nil
		case "kid":
			return Grant{Token: "t2", ProfileID: "kid", ProfileName: "Kid", ProfileKids: true}, nil
		}
		return Grant{}, &RejectedError{Message: "no such profile"}
	}}
	m, st := newTestManager(p, Options{})
	seed(t, st, types.SessionState{Token: "t1", ExpiresAt: testNow.Add(time.Hour), ProfileID: "main"})

	if err := m.SelectProfile(ctx, "kid"); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Snapshot(ctx)
	if s.ProfileID != "kid" || !s.ProfileKids {
		t.Errorf("state = %+v", s)
	}

	err := m.SelectProfile(ctx, "ghost")
	if !errs.IsAuthentication(err) {
		t.Fatalf("err = %v", err)
	}
	if v, _, _ := st.Get(ctx, KeyToken); v == "" {
		t.Error("rejected profile switch cleared the session")
	}
}

func TestSelectProfile_ConcurrentLogout(t *testing.T) {
	cases := []struct {
		name          string
		logoutFirst   bool
		wantErr       bool
		wantRefreshes int
	}{
		{"logout before select", true, true, 0},
		{"logout while refreshing", false, false, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			done := make(chan struct{})
			var m *Manager
			p := &fakeProvider{refresh: func(r RefreshRequest) (Grant, error) {
				if r.ProfileID == "" {
					go func() {
						_ = m.Logout(ctx)
						close(done)
					}()
					return Grant{Token: "t2", ExpiresAt: testNow.Add(time.Hour)}, nil
				}
				return Grant{Token: r.Token + "-kid", ProfileID: r.ProfileID}, nil
			}}
			var st *store.Memory
			m, st = newTestManager(p, Options{})
			seed(t, st, types.SessionState{Token: "t1", ExpiresAt: testNow.Add(-time.Minute)})

			if tc.logoutFirst {
				if err := m.Logout(ctx); err != nil {
					t.Fatal(err)
				}
				close(done)
			}
			err := m.SelectProfile(ctx, "kid")
			<-done

			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v (wantErr %v)", err, tc.wantErr)
			}
			if tc.wantErr && !errs.IsSessionExpired(err) {
				t.Errorf("err = %v, want SESSION_EXPIRED", err)
			}
			if len(p.refreshes) != tc.wantRefreshes {
				t.Fatalf("refreshes = %d (want %d)", len(p.refreshes), tc.wantRefreshes)
			}
			for _, r := range p.refreshes {
				if r.Token == "" {
					t.Errorf("refresh sent without a token: %+v", r)
				}
			}
			if m.LoggedIn(ctx) {
				t.Error("logout did not take effect")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(&fakeProvider{login: okLogin}, Options{SavePassword: true})
	if err := m.Login(ctx, "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if st.Len() != 0 {
		t.Errorf("%d keys left", st.Len())
	}
	if m.LoggedIn(ctx) {
		t.Error("still logged in")
	}
}

func TestEntitlementToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(&fakeProvider{login: okLogin}, Options{})
	if _, ok, err := m.EntitlementToken(ctx); ok || err != nil {
		t.Fatalf("logged out: ok=%v err=%v", ok, err)
	}
	if err := m.Login(ctx, "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	tok, ok, err := m.EntitlementToken(ctx)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if tok != "73d29131afac4942c24c8b43bd714e65" {
		t.Errorf("token = %s", tok)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(&fakeProvider{}, Options{})
	seed(t, st, types.SessionState{Token: "t", ProfileKids: true, ExpiresAt: time.Unix(1700000000, 0)})
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if m.State() != Active {
		t.Errorf("State = %v", m.State())
	}
	s, _ := m.Snapshot(ctx)
	if !s.ProfileKids || s.ExpiresAt.Unix() != 1700000000 {
		t.Errorf("round trip lost fields: %+v", s)
	}
}

type failingStore struct {
	store.Store
	failKey string
}

func (f failingStore) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func TestLogin_WriteFailureLeavesNoToken(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := New(&fakeProvider{login: okLogin}, failingStore{Store: mem, failKey: KeyEntitlements}, Options{})
	if err := m.Login(ctx, "alice", "pw"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := mem.Get(ctx, KeyToken); ok {
		t.Error("token written despite failed save")
	}
}
