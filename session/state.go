package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ytget/streamsession/store"
	"github.com/ytget/streamsession/types"
)

// State is the lifecycle state of a Manager.
type State int

const (
	LoggedOut State = iota
	LoggingIn
	Active
	Refreshing
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case Active:
		return "active"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Store keys.
const (
	KeyToken        = "token"
	KeyDeviceID     = "deviceid"
	KeyExpires      = "expires"
	KeyEntitlements = "entitlements"
	KeyPassword     = "pswd"
	KeyUsername     = "username"
	KeyUserID       = "user_id"
	KeyProfileID    = "profile_id"
	KeyProfileName  = "profile_name"
	KeyProfileIcon  = "profile_icon"
	KeyProfileKids  = "profile_kids"
)

// AllKeys lists every key a session writes. KeyToken comes first so a
// partially cleared session already reads as logged out.
var AllKeys = []string{
	KeyToken,
	KeyDeviceID,
	KeyExpires,
	KeyEntitlements,
	KeyPassword,
	KeyUsername,
	KeyUserID,
	KeyProfileID,
	KeyProfileName,
	KeyProfileIcon,
	KeyProfileKids,
}

// SensitiveKeys should be sealed at rest.
var SensitiveKeys = []string{KeyToken, KeyPassword}

func loadState(ctx context.Context, st store.Store) (types.SessionState, error) {
	var (
		s   types.SessionState
		err error
	)
	get := func(key string) string {
		if err != nil {
			return ""
		}
		v, _, gErr := st.Get(ctx, key)
		if gErr != nil {
			err = gErr
		}
		return v
	}

	s.Token = get(KeyToken)
	s.DeviceID = get(KeyDeviceID)
	s.Entitlements = get(KeyEntitlements)
	s.StoredPassword = get(KeyPassword)
	s.Username = get(KeyUsername)
	s.UserID = get(KeyUserID)
	s.ProfileID = get(KeyProfileID)
	s.ProfileName = get(KeyProfileName)
	s.ProfileIcon = get(KeyProfileIcon)
	s.ProfileKids = get(KeyProfileKids) == "1"
	if raw := get(KeyExpires); raw != "" {
		if sec, pErr := strconv.ParseInt(raw, 10, 64); pErr == nil {
			s.ExpiresAt = time.Unix(sec, 0)
		}
	}
	if err != nil {
		return types.SessionState{}, fmt.Errorf("session: load state: %w", err)
	}
	return s, nil
}

// saveState writes s, deleting keys whose value is empty. The token is
// written last.
func saveState(ctx context.Context, st store.Store, s types.SessionState) error {
	kids := ""
	if s.ProfileKids {
		kids = "1"
	}
	expires := ""
	if !s.ExpiresAt.IsZero() {
		expires = strconv.FormatInt(s.ExpiresAt.Unix(), 10)
	}
	values := map[string]string{
		KeyDeviceID:     s.DeviceID,
		KeyExpires:      expires,
		KeyEntitlements: s.Entitlements,
		KeyPassword:     s.StoredPassword,
		KeyUsername:     s.Username,
		KeyUserID:       s.UserID,
		KeyProfileID:    s.ProfileID,
		KeyProfileName:  s.ProfileName,
		KeyProfileIcon:  s.ProfileIcon,
		KeyProfileKids:  kids,
	}
	for _, key := range AllKeys[1:] {
		v := values[key]
		var err error
		if v == "" {
			err = st.Delete(ctx, key)
		} else {
			err = st.Set(ctx, key, v)
		}
		if err != nil {
			return fmt.Errorf("session: save %s: %w", key, err)
		}
	}
	if err := st.Set(ctx, KeyToken, s.Token); err != nil {
		return fmt.Errorf("session: save %s: %w", KeyToken, err)
	}
	return nil
}

// clearState deletes every key, token first, even when some deletes fail.
func clearState(ctx context.Context, st store.Store) error {
	var errList []error
	for _, key := range AllKeys {
		if err := st.Delete(ctx, key); err != nil {
			errList = append(errList, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("session: clear state: %w", errors.Join(errList...))
	}
	return nil
}
