package engine

import (
	"strings"
	"testing"
	"time"
)

func TestNewSessionKeyShape(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key, err := newSessionKey("node-1", "0xAbC", now, 48*time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(key.PrivateKey, "0x") || len(key.PrivateKey) != 2+64 {
		t.Fatalf("private key = %q", key.PrivateKey)
	}
	if !strings.HasPrefix(key.PublicAddress, "0x") || len(key.PublicAddress) != 2+40 {
		t.Fatalf("public address = %q", key.PublicAddress)
	}
	if key.Authorized {
		t.Fatal("fresh key must start unauthorized")
	}
	if key.ExpiresAt != now.Add(48*time.Hour).UTC().Format(time.RFC3339) {
		t.Fatalf("expires = %q", key.ExpiresAt)
	}
}

func TestNewSessionKeyNoCollisions(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool, 20000)
	for i := 0; i < 10000; i++ {
		key, err := newSessionKey("node-1", "0xAbC", now, time.Hour, nil)
		if err != nil {
			t.Fatal(err)
		}
		if seen[key.PrivateKey] || seen[key.PublicAddress] {
			t.Fatalf("duplicate key material at generation %d", i)
		}
		seen[key.PrivateKey] = true
		seen[key.PublicAddress] = true
	}
}
