package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Default TTLs per cached kind. Tenant config changes rarely, player lists
// churn with every roster edit, invite links stay valid until rotated.
const (
	TenantConfigTTL = 10 * time.Minute
	PlayerListTTL   = 5 * time.Minute
	InviteLinkTTL   = 60 * time.Minute
)

// TenantConfig is the cached per-team configuration blob.
type TenantConfig struct {
	TeamID   string            `json:"team_id"`
	TeamName string            `json:"team_name"`
	Timezone string            `json:"timezone,omitempty"`
	Language string            `json:"language,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Player is one roster entry in a cached player list.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Position string `json:"position,omitempty"`
	Active   bool   `json:"active"`
}

// TenantCache is the typed facade over a cache Backend. Keys are namespaced
// per tenant; a miss is never an error, backend failures are reported
// alongside the miss so callers can log and refetch.
type TenantCache struct {
	backend Backend
}

// NewTenantCache wraps a backend.
func NewTenantCache(backend Backend) *TenantCache {
	return &TenantCache{backend: backend}
}

func tenantConfigKey(teamID string) string { return "tenant_config:" + teamID }
func playerListKey(teamID string) string   { return "player_list:" + teamID }
func inviteLinkKey(teamID string) string   { return "invite_link:" + teamID }

// GetTenantConfig returns the cached config for a team.
func (t *TenantCache) GetTenantConfig(ctx context.Context, teamID string) (*TenantConfig, bool, error) {
	raw, ok, err := t.backend.Get(ctx, tenantConfigKey(teamID))
	if err != nil || !ok {
		return nil, false, err
	}
	var cfg TenantConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, false, fmt.Errorf("decode tenant config %s: %w", teamID, err)
	}
	return &cfg, true, nil
}

// SetTenantConfig caches a team's config for TenantConfigTTL.
func (t *TenantCache) SetTenantConfig(ctx context.Context, teamID string, cfg *TenantConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode tenant config %s: %w", teamID, err)
	}
	return t.backend.Set(ctx, tenantConfigKey(teamID), string(raw), TenantConfigTTL)
}

// GetPlayerList returns the cached roster for a team.
func (t *TenantCache) GetPlayerList(ctx context.Context, teamID string) ([]Player, bool, error) {
	raw, ok, err := t.backend.Get(ctx, playerListKey(teamID))
	if err != nil || !ok {
		return nil, false, err
	}
	var players []Player
	if err := json.Unmarshal([]byte(raw), &players); err != nil {
		return nil, false, fmt.Errorf("decode player list %s: %w", teamID, err)
	}
	return players, true, nil
}

// SetPlayerList caches a team's roster for PlayerListTTL.
func (t *TenantCache) SetPlayerList(ctx context.Context, teamID string, players []Player) error {
	raw, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("encode player list %s: %w", teamID, err)
	}
	return t.backend.Set(ctx, playerListKey(teamID), string(raw), PlayerListTTL)
}

// GetInviteLink returns the cached invite link for a team.
func (t *TenantCache) GetInviteLink(ctx context.Context, teamID string) (string, bool, error) {
	raw, ok, err := t.backend.Get(ctx, inviteLinkKey(teamID))
	if err != nil || !ok {
		return "", false, err
	}
	var link string
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return "", false, fmt.Errorf("decode invite link %s: %w", teamID, err)
	}
	return link, true, nil
}

// SetInviteLink caches a team's invite link for InviteLinkTTL.
func (t *TenantCache) SetInviteLink(ctx context.Context, teamID, link string) error {
	raw, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode invite link %s: %w", teamID, err)
	}
	return t.backend.Set(ctx, inviteLinkKey(teamID), string(raw), InviteLinkTTL)
}

// InvalidateTenant removes every cached entry for the team. All keys are
// attempted; the first failure is reported.
func (t *TenantCache) InvalidateTenant(ctx context.Context, teamID string) error {
	var first error
	for _, key := range []string{
		tenantConfigKey(teamID),
		playerListKey(teamID),
		inviteLinkKey(teamID),
	} {
		if err := t.backend.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats reports the backend population.
func (t *TenantCache) Stats(ctx context.Context) (Stats, error) {
	return t.backend.Stats(ctx)
}
