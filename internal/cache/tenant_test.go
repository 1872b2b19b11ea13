package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingBackend captures Set calls so tests can assert key and ttl
// policy without waiting on real clocks.
type recordingBackend struct {
	MemoryBackend
	lastKey string
	lastTTL time.Duration
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{MemoryBackend: *NewMemoryBackend(New(0))}
}

func (r *recordingBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.lastKey = key
	r.lastTTL = ttl
	return r.MemoryBackend.Set(ctx, key, value, ttl)
}

// ===== Typed round trips =====

func TestTenantConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := NewTenantCache(NewMemoryBackend(New(0)))

	cfg := &TenantConfig{
		TeamID:   "TEAMA",
		TeamName: "Riverside Rovers",
		Timezone: "Europe/London",
		Settings: map[string]string{"training_day": "tuesday"},
	}
	if err := tc.SetTenantConfig(ctx, "TEAMA", cfg); err != nil {
		t.Fatalf("SetTenantConfig: %v", err)
	}

	got, ok, err := tc.GetTenantConfig(ctx, "TEAMA")
	if err != nil || !ok {
		t.Fatalf("GetTenantConfig: ok=%v err=%v", ok, err)
	}
	if got.TeamName != cfg.TeamName || got.Settings["training_day"] != "tuesday" {
		t.Errorf("config mismatch: %+v", got)
	}
}

func TestPlayerListRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := NewTenantCache(NewMemoryBackend(New(0)))

	players := []Player{
		{ID: "p1", Name: "Alex", Position: "GK", Active: true},
		{ID: "p2", Name: "Sam", Position: "CM", Active: false},
	}
	if err := tc.SetPlayerList(ctx, "TEAMA", players); err != nil {
		t.Fatalf("SetPlayerList: %v", err)
	}

	got, ok, err := tc.GetPlayerList(ctx, "TEAMA")
	if err != nil || !ok {
		t.Fatalf("GetPlayerList: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].Name != "Alex" || got[1].Active {
		t.Errorf("player list mismatch: %+v", got)
	}
}

func TestInviteLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := NewTenantCache(NewMemoryBackend(New(0)))

	if err := tc.SetInviteLink(ctx, "TEAMA", "https://chat.example/join/abc"); err != nil {
		t.Fatalf("SetInviteLink: %v", err)
	}
	link, ok, err := tc.GetInviteLink(ctx, "TEAMA")
	if err != nil || !ok {
		t.Fatalf("GetInviteLink: ok=%v err=%v", ok, err)
	}
	if link != "https://chat.example/join/abc" {
		t.Errorf("link mismatch: %s", link)
	}
}

func TestMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	tc := NewTenantCache(NewMemoryBackend(New(0)))

	if _, ok, err := tc.GetTenantConfig(ctx, "nobody"); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := tc.GetPlayerList(ctx, "nobody"); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := tc.GetInviteLink(ctx, "nobody"); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

// ===== Key and TTL policy =====

func TestKeyNamespacesAndTTLs(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingBackend()
	tc := NewTenantCache(rec)

	if err := tc.SetTenantConfig(ctx, "T1", &TenantConfig{TeamID: "T1"}); err != nil {
		t.Fatal(err)
	}
	if rec.lastKey != "tenant_config:T1" || rec.lastTTL != TenantConfigTTL {
		t.Errorf("tenant config policy: key=%s ttl=%s", rec.lastKey, rec.lastTTL)
	}

	if err := tc.SetPlayerList(ctx, "T1", nil); err != nil {
		t.Fatal(err)
	}
	if rec.lastKey != "player_list:T1" || rec.lastTTL != PlayerListTTL {
		t.Errorf("player list policy: key=%s ttl=%s", rec.lastKey, rec.lastTTL)
	}

	if err := tc.SetInviteLink(ctx, "T1", "x"); err != nil {
		t.Fatal(err)
	}
	if rec.lastKey != "invite_link:T1" || rec.lastTTL != InviteLinkTTL {
		t.Errorf("invite link policy: key=%s ttl=%s", rec.lastKey, rec.lastTTL)
	}
}

func TestInvalidateTenant(t *testing.T) {
	ctx := context.Background()
	tc := NewTenantCache(NewMemoryBackend(New(0)))

	_ = tc.SetTenantConfig(ctx, "T1", &TenantConfig{TeamID: "T1"})
	_ = tc.SetPlayerList(ctx, "T1", []Player{{ID: "p1"}})
	_ = tc.SetInviteLink(ctx, "T1", "link-1")
	_ = tc.SetInviteLink(ctx, "T2", "link-2")

	if err := tc.InvalidateTenant(ctx, "T1"); err != nil {
		t.Fatalf("InvalidateTenant: %v", err)
	}

	if _, ok, _ := tc.GetTenantConfig(ctx, "T1"); ok {
		t.Error("tenant config should be gone")
	}
	if _, ok, _ := tc.GetPlayerList(ctx, "T1"); ok {
		t.Error("player list should be gone")
	}
	if _, ok, _ := tc.GetInviteLink(ctx, "T1"); ok {
		t.Error("invite link should be gone")
	}
	// Other tenants are untouched.
	if link, ok, _ := tc.GetInviteLink(ctx, "T2"); !ok || link != "link-2" {
		t.Errorf("other tenant affected: %s %v", link, ok)
	}
}

// ===== Failure propagation =====

type failingBackend struct {
	MemoryBackend
}

func (f *failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func TestBackendErrorSurfacesWithMiss(t *testing.T) {
	tc := NewTenantCache(&failingBackend{})

	_, ok, err := tc.GetTenantConfig(context.Background(), "T1")
	if ok {
		t.Error("expected miss on backend failure")
	}
	if err == nil {
		t.Error("expected error to surface for logging")
	}
}
