// Package signer produces HMAC-SHA256 request signatures over a canonical,
// sorted parameter string.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	"github.com/ytget/streamsession/types"
)

// SafeChars is the allowlist kept unescaped in signed values, in addition to
// the always-safe characters.
const SafeChars = "_-!.~'()*"

// Signer signs parameter maps with a key derived from two masked arrays.
type Signer struct {
	key []byte
}

// New derives the HMAC key from a and b: mid[i] = a[i]^b[i], then
// key[i] = mid[i]^mid[n/2+i].
func New(a, b []byte) (*Signer, error) {
	if len(a) != len(b) {
		return nil, errors.New("signer: key arrays differ in length")
	}
	if len(a) == 0 || len(a)%2 != 0 {
		return nil, errors.New("signer: key arrays must have a positive even length")
	}
	mid := make([]byte, len(a))
	for i := range a {
		mid[i] = a[i] ^ b[i]
	}
	half := len(mid) / 2
	key := make([]byte, half)
	for i := range key {
		key[i] = mid[i] ^ mid[half+i]
	}
	return &Signer{key: key}, nil
}

// Key returns a copy of the derived HMAC key.
func (s *Signer) Key() []byte {
	return append([]byte(nil), s.key...)
}

// Sign returns base64(HMAC-SHA256(key, Canonicalize(params))).
func (s *Signer) Sign(params map[string]string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(Canonicalize(params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignRequest signs params and returns them together with the signature.
func (s *Signer) SignRequest(params map[string]string) types.SignedRequest {
	return types.SignedRequest{Params: params, Signature: s.Sign(params)}
}

// Canonicalize joins key=QuotePlus(value) pairs in key order with '&'.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(QuotePlus(params[k], SafeChars))
	}
	return b.String()
}

const upperHex = "0123456789ABCDEF"

// QuotePlus form-escapes s: letters, digits, "_.-~" and any byte in safe stay
// as-is, space becomes '+', every other UTF-8 byte becomes %XX.
//
// url.QueryEscape is not used because it escapes "!'()*", which the signing
// peer leaves intact.
func QuotePlus(s, safe string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c) || (c < 0x80 && strings.IndexByte(safe, c) >= 0):
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0f])
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
		c == '_' || c == '.' || c == '-' || c == '~'
}
