// Package identity derives the stable device label and hashed device id that
// a device-bound provider registers against an account.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ytget/streamsession/internal/logger"
	"github.com/ytget/streamsession/types"
)

// Template tokens.
const (
	TokenUsername   = "{username}"
	TokenMACAddress = "{mac_address}"
	TokenSystem     = "{system}"
)

// Default templates used when a provider config leaves them empty.
const (
	DefaultIDTemplate   = "{username}{mac_address}{system}"
	DefaultNameTemplate = "{system} Media Player"
)

// HostInfo reports facts about the running machine.
type HostInfo interface {
	HardwareAddr() (string, error)
	Platform() string
}

// Host reads the hardware node id through github.com/google/uuid.
type Host struct{}

// HardwareAddr returns the 48-bit node id as a decimal integer.
func (Host) HardwareAddr() (string, error) {
	node := uuid.NodeID()
	if len(node) != 6 {
		return "", fmt.Errorf("identity: unexpected node id length %d", len(node))
	}
	var n uint64
	for _, b := range node {
		n = n<<8 | uint64(b)
	}
	return strconv.FormatUint(n, 10), nil
}

// Platform returns the operating system name, capitalized.
func (Host) Platform() string {
	return PlatformName(runtime.GOOS)
}

// PlatformName maps a GOOS value to a display name.
func PlatformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	case "freebsd":
		return "FreeBSD"
	case "":
		return "Unknown"
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

// Context holds the values substituted into a template.
type Context struct {
	Username   string
	MACAddress string
	System     string
}

// FormatLabel substitutes the template tokens and trims the result.
func FormatLabel(template string, ctx Context) string {
	r := strings.NewReplacer(
		TokenUsername, ctx.Username,
		TokenMACAddress, ctx.MACAddress,
		TokenSystem, ctx.System,
	)
	return strings.TrimSpace(r.Replace(template))
}

// ResolveHardwareID reads the identifier twice. Any error or disagreement
// between the reads yields "".
func ResolveHardwareID(read func() (string, error)) string {
	first, err := read()
	if err != nil {
		return ""
	}
	second, err := read()
	if err != nil || first != second {
		return ""
	}
	return first
}

// HashID is the hex SHA-1 of the lower-cased label.
func HashID(label string) string {
	sum := sha1.Sum([]byte(strings.ToLower(label)))
	return hex.EncodeToString(sum[:])
}

// Deriver builds a DeviceIdentity from templates and host facts.
type Deriver struct {
	Host         HostInfo
	IDTemplate   string
	NameTemplate string
}

// Derive computes the identity for one login attempt.
func (d Deriver) Derive(username string) types.DeviceIdentity {
	host := d.Host
	if host == nil {
		host = Host{}
	}
	idTemplate := d.IDTemplate
	if idTemplate == "" {
		idTemplate = DefaultIDTemplate
	}
	nameTemplate := d.NameTemplate
	if nameTemplate == "" {
		nameTemplate = DefaultNameTemplate
	}

	ctx := Context{
		Username:   username,
		MACAddress: ResolveHardwareID(host.HardwareAddr),
		System:     host.Platform(),
	}
	if ctx.MACAddress == "" {
		logger.WithComponent(logger.ComponentIdentity).Warn("hardware id unavailable or unstable, using empty value")
	}

	label := FormatLabel(idTemplate, ctx)
	id := types.DeviceIdentity{
		RawLabel: label,
		HashedID: HashID(label),
		Nickname: FormatLabel(nameTemplate, ctx),
	}
	logger.WithComponent(logger.ComponentIdentity).Debug("derived device identity", map[string]interface{}{
		"device_id": id.HashedID,
		"nickname":  id.Nickname,
	})
	return id
}
