package stream

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// WidevineSystemID identifies the Widevine content protection system.
var WidevineSystemID = [16]byte{
	0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce,
	0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed,
}

// widevineKeyIDTag is the protobuf tag of the key_id field in Widevine
// PSSH data.
const widevineKeyIDTag = 0x12

// InitData builds a base64 version 0 PSSH box for keyID. Dashes and braces
// in keyID are ignored.
func InitData(keyID string) (string, error) {
	cleaned := strings.NewReplacer("-", "", "{", "", "}", "", " ", "").Replace(keyID)
	kid, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("stream: invalid key id %q: %w", keyID, err)
	}
	if len(kid) == 0 || len(kid) > 0xff {
		return "", fmt.Errorf("stream: invalid key id length %d", len(kid))
	}

	data := make([]byte, 0, 2+len(kid))
	data = append(data, widevineKeyIDTag, byte(len(kid)))
	data = append(data, kid...)

	size := 4 + 4 + 4 + len(WidevineSystemID) + 4 + len(data)
	box := make([]byte, 0, size)
	box = binary.BigEndian.AppendUint32(box, uint32(size))
	box = append(box, "pssh"...)
	box = append(box, 0, 0, 0, 0) // version 0, no flags
	box = append(box, WidevineSystemID[:]...)
	box = binary.BigEndian.AppendUint32(box, uint32(len(data)))
	box = append(box, data...)
	return base64.StdEncoding.EncodeToString(box), nil
}
