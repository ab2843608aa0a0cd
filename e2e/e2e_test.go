//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/ytget/streamsession"
	"github.com/ytget/streamsession/prompt"
)

func TestE2E_LoginAndPlay(t *testing.T) {
	if os.Getenv("STREAMSESSION_E2E") == "" {
		t.Skip("STREAMSESSION_E2E not set")
	}
	provider := os.Getenv("STREAMSESSION_E2E_PROVIDER")
	if provider == "" {
		provider = "foxtel"
	}
	user, pass := os.Getenv("STREAMSESSION_E2E_USERNAME"), os.Getenv("STREAMSESSION_E2E_PASSWORD")
	if user == "" || pass == "" {
		t.Skip("STREAMSESSION_E2E_USERNAME / _PASSWORD not set")
	}

	ctx := context.Background()
	// Never deregister a real device from a test run.
	s, err := streamsession.New(provider).WithPrompt(prompt.Fixed(prompt.Cancelled)).Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Logout(ctx) }()

	if err := s.Login(ctx, user, pass); err != nil {
		t.Fatalf("e2e login failed: %v", err)
	}
	if err := s.EnsureValidSession(ctx, true); err != nil {
		t.Fatalf("e2e refresh failed: %v", err)
	}

	assetType, assetID := os.Getenv("STREAMSESSION_E2E_ASSET_TYPE"), os.Getenv("STREAMSESSION_E2E_ASSET_ID")
	if assetID == "" {
		return
	}
	pb, err := s.ResolvePlayback(ctx, assetType, assetID)
	if err != nil {
		t.Fatalf("e2e playback failed: %v", err)
	}
	if pb.URL == "" {
		t.Fatal("empty playback url")
	}
}
