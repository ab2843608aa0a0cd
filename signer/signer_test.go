package signer

import (
	"bytes"
	"testing"
)

// testKey is the 64-byte HMAC key used by the golden vectors below.
const testKey = "p57ytjy4DMWT4BzANsLD6HysF7qZVWuqm4MVXVhCmquq4PSjbExMuFb6QcWK6QAx"

// newTestSigner builds arrays whose derivation yields testKey:
// a = key || zeros, b = zeros, so mid = a and key = mid[:64] ^ 0.
func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	a := append([]byte(testKey), make([]byte, len(testKey))...)
	b := make([]byte, len(a))
	s, err := New(a, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_KeyDerivation(t *testing.T) {
	a := []byte{0x0f, 0xf0, 0xaa, 0x55}
	b := []byte{0x01, 0x10, 0x0a, 0x05}
	// mid = 0e e0 a0 50; key = 0e^a0, e0^50 = ae b0
	s, err := New(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Key(); !bytes.Equal(got, []byte{0xae, 0xb0}) {
		t.Errorf("Key = %x, want aeb0", got)
	}
	if !bytes.Equal(newTestSigner(t).Key(), []byte(testKey)) {
		t.Error("test signer key mismatch")
	}
}

func TestNew_InvalidArrays(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
	}{
		{"length mismatch", []byte{1, 2}, []byte{1}},
		{"odd length", []byte{1, 2, 3}, []byte{1, 2, 3}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		if _, err := New(tt.a, tt.b); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name:   "sorted keys",
			params: map[string]string{"b": "2", "a": "1"},
			want:   "a=1&b=2",
		},
		{
			name: "login payload",
			params: map[string]string{
				"email":       "user@example.com",
				"password":    "p@ss w0rd!(x)*'~",
				"rnd":         "1700000000",
				"stanName":    "Stan-Android",
				"type":        "mobile",
				"os":          "Android",
				"stanVersion": "4.32.1",
			},
			want: "email=user%40example.com&os=Android&password=p%40ss+w0rd!(x)*'~&rnd=1700000000&stanName=Stan-Android&stanVersion=4.32.1&type=mobile",
		},
		{
			name:   "utf-8 and reserved",
			params: map[string]string{"q": "ä/é+&="},
			want:   "q=%C3%A4%2F%C3%A9%2B%26%3D",
		},
		{
			name:   "empty",
			params: map[string]string{},
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.params); got != tt.want {
				t.Errorf("Canonicalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSign_GoldenVectors(t *testing.T) {
	s := newTestSigner(t)
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name: "login payload",
			params: map[string]string{
				"email":       "user@example.com",
				"password":    "p@ss w0rd!(x)*'~",
				"rnd":         "1700000000",
				"stanName":    "Stan-Android",
				"type":        "mobile",
				"os":          "Android",
				"stanVersion": "4.32.1",
			},
			want: "WtzYhQboYM48fD7d4BeLs3NyBmtgHKooCff3Py3QZmA=",
		},
		{
			name:   "two keys",
			params: map[string]string{"b": "2", "a": "1"},
			want:   "GIhu2+d2j2ckB7xMVSF84Yysx+Urz5wA2g+v9datI3g=",
		},
		{
			name:   "utf-8",
			params: map[string]string{"q": "ä/é+&="},
			want:   "xBFzfpGgWktfNGftNL8qLKCUC9xppzLb8t6W0aZ5TDM=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sign(tt.params); got != tt.want {
				t.Errorf("Sign() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSign_OrderIndependent(t *testing.T) {
	s := newTestSigner(t)
	want := s.Sign(map[string]string{"a": "1", "b": "2", "c": "3"})
	for i := 0; i < 20; i++ {
		m := map[string]string{}
		m["c"] = "3"
		m["a"] = "1"
		m["b"] = "2"
		if got := s.Sign(m); got != want {
			t.Fatalf("iteration %d: Sign() = %s, want %s", i, got, want)
		}
	}
}

func TestSignRequest(t *testing.T) {
	s := newTestSigner(t)
	params := map[string]string{"a": "1", "b": "2"}
	req := s.SignRequest(params)
	if req.Signature != "GIhu2+d2j2ckB7xMVSF84Yysx+Urz5wA2g+v9datI3g=" {
		t.Errorf("Signature = %s", req.Signature)
	}
	if req.Params["a"] != "1" {
		t.Error("params not carried")
	}
}

func TestQuotePlus(t *testing.T) {
	tests := []struct {
		in, safe, want string
	}{
		{"a b", "", "a+b"},
		{"!'()*", SafeChars, "!'()*"},
		{"!'()*", "", "%21%27%28%29%2A"},
		{"~._-", "", "~._-"},
		{"/", "", "%2F"},
		{"€", SafeChars, "%E2%82%AC"},
	}
	for _, tt := range tests {
		if got := QuotePlus(tt.in, tt.safe); got != tt.want {
			t.Errorf("QuotePlus(%q, %q) = %q, want %q", tt.in, tt.safe, got, tt.want)
		}
	}
}
