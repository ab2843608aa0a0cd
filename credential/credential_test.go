package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
)

const testIVHex = "000102030405060708090a0b0c0d0e0f"

func testIV(t *testing.T) []byte {
	t.Helper()
	iv, err := hex.DecodeString(testIVHex)
	if err != nil {
		t.Fatal(err)
	}
	return iv
}

func TestEncrypt_GoldenVectors(t *testing.T) {
	iv := testIV(t)
	tests := []struct {
		name      string
		secret    string
		plaintext string
		want      string
	}{
		{"aes-128", "abc123abc123abc1", "hunter2", "a2ed7e0567ace6537ceee96ab38122d0"},
		{"aes-192", "abc123abc123abc123abc123", "hunter2", "b196f263973b4015680109d5cfcc7ac1"},
		{"aes-256", "abc123abc123abc123abc123abc123ab", "hunter2", "c64730b00f8e9245342606646d17c8dc"},
		{"two blocks", "abc123abc123abc1", "correct horse battery", "bc5d6b4f801ddeae8192d741295ad0355dc3d9189f24b039beda16a8e8acf566"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encrypt(tt.secret, iv, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encrypt = %s, want %s", got, tt.want)
			}
			back, err := Decrypt(tt.secret, iv, got)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if back != tt.plaintext {
				t.Errorf("round trip = %q, want %q", back, tt.plaintext)
			}
		})
	}
}

func TestEncrypt_InvalidSecret(t *testing.T) {
	for _, secret := range []string{"", "abc123", "abc123abc123abc12"} {
		if _, err := Encrypt(secret, testIV(t), "hunter2"); !errors.Is(err, ErrInvalidSecret) {
			t.Errorf("Encrypt(secret %q) error = %v, want ErrInvalidSecret", secret, err)
		}
	}
}

func TestEncrypt_InvalidIV(t *testing.T) {
	if _, err := Encrypt("abc123abc123abc1", []byte{1, 2, 3}, "x"); !errors.Is(err, ErrInvalidIV) {
		t.Errorf("error = %v, want ErrInvalidIV", err)
	}
}

func TestEncrypt_EmptyPlaintextIsOneBlock(t *testing.T) {
	got, err := Encrypt("abc123abc123abc1", testIV(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 32 {
		t.Errorf("len = %d, want one hex-encoded block", len(got))
	}
}

func TestNewCipher(t *testing.T) {
	fetch := SecretFetcherFunc(func(context.Context, string, string) (string, error) { return "", nil })
	if _, err := NewCipher("zz", fetch); err == nil {
		t.Error("expected hex decode error")
	}
	if _, err := NewCipher("0001", fetch); !errors.Is(err, ErrInvalidIV) {
		t.Errorf("error = %v, want ErrInvalidIV", err)
	}
	if _, err := NewCipher(testIVHex, nil); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestCipher_EncryptPassword(t *testing.T) {
	var gotDevice, gotNick string
	fetch := SecretFetcherFunc(func(_ context.Context, deviceID, nickname string) (string, error) {
		gotDevice, gotNick = deviceID, nickname
		return "abc123abc123abc1", nil
	})
	c, err := NewCipher(testIVHex, fetch)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.EncryptPassword(context.Background(), "hunter2", "dev-1", "Linux box")
	if err != nil {
		t.Fatalf("EncryptPassword: %v", err)
	}
	if got != "a2ed7e0567ace6537ceee96ab38122d0" {
		t.Errorf("EncryptPassword = %s", got)
	}
	if gotDevice != "dev-1" || gotNick != "Linux box" {
		t.Errorf("fetcher got (%q, %q)", gotDevice, gotNick)
	}
}

func TestCipher_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("prelogin unreachable")
	c, err := NewCipher(testIVHex, SecretFetcherFunc(func(context.Context, string, string) (string, error) {
		return "", boom
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.EncryptPassword(context.Background(), "pw", "d", "n"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
