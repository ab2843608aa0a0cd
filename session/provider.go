package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ytget/streamsession/types"
)

// Provider performs the remote half of login and refresh.
type Provider interface {
	Name() string
	Login(ctx context.Context, cred Credentials) (Grant, error)
	Refresh(ctx context.Context, req RefreshRequest) (Grant, error)
}

// Credentials are the inputs to a password login.
type Credentials struct {
	Username   string
	Password   string
	KickDevice string // registered device id to deregister, if any
}

// RefreshRequest carries the stored session. Password is set only for the
// fallback attempt after a token refresh was rejected. ProfileID is set only
// when switching profiles.
type RefreshRequest struct {
	Username  string
	Token     string
	DeviceID  string
	Password  string
	ProfileID string
}

// Grant is what a successful login or refresh returns.
//
// Empty DeviceID, UserID and profile fields keep the stored values on
// refresh. Entitlements always replace the stored value. A zero ExpiresAt
// falls back to the token's own exp claim when it is a JWT.
type Grant struct {
	Token        string
	DeviceID     string
	Entitlements string
	ExpiresAt    time.Time
	UserID       string
	ProfileID    string
	ProfileName  string
	ProfileIcon  string
	ProfileKids  bool
}

// ConflictError reports that the account's device limit is reached.
type ConflictError struct {
	Message string
	Devices []types.Device
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("device limit reached (%d registered): %s", len(e.Devices), e.Message)
}

// Nicknames lists the devices' display names in order.
func (e *ConflictError) Nicknames() []string {
	names := make([]string, len(e.Devices))
	for i, d := range e.Devices {
		names[i] = d.Nickname
	}
	return names
}

// RejectedError is a provider-reported refusal, as opposed to a transport
// failure. MessageKey, when set, names a localized message that replaces
// the raw Message. Reason is one of the errs reason sentinels or nil.
type RejectedError struct {
	Code       string
	Message    string
	MessageKey string
	Reason     error
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rejected [%s]: %s", e.Code, e.Message)
	}
	return "rejected: " + e.Message
}
