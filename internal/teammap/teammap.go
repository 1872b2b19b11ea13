// Package teammap resolves transport conversation ids to team (tenant) ids.
// Resolution walks a layered fallback chain: the in-memory map, then the
// config/environment-derived table, then the configured default team. Team
// provisioning is asynchronous relative to message arrival, so the chain
// trades hard failures for lower-confidence default routing; results carry
// their source so callers can treat fallback hits accordingly.
package teammap

import (
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/squadbot/platform_core/pkg/logger"
)

// ErrMappingNotFound means every layer of the fallback chain came up empty.
// The caller decides whether that is fatal or prompts team setup.
var ErrMappingNotFound = errors.New("no team mapping for conversation")

// Source names the chain layer a resolution came from.
type Source string

const (
	// SourceMemory is the authoritative in-process map.
	SourceMemory Source = "memory"
	// SourceConfig is the config file or environment table.
	SourceConfig Source = "config"
	// SourceDefault is the configured fallback team.
	SourceDefault Source = "default"
)

// Resolution is the outcome of resolving one conversation id. Exact is false
// only for default-team fallbacks, which are a routing guess rather than a
// known mapping.
type Resolution struct {
	TeamID string `json:"team_id"`
	Source Source `json:"source"`
	Exact  bool   `json:"exact"`
}

// Config seeds a Service.
type Config struct {
	// DefaultTeamID is returned when no mapping exists. Empty disables the
	// default layer.
	DefaultTeamID string

	// ChatMappings maps conversation ids to team ids, from the config file.
	ChatMappings map[string]string

	// MappingsJSON is a JSON object of conversation-id → team-id pairs,
	// normally injected through the TEAM_CHAT_MAPPINGS environment variable.
	// Invalid JSON is logged and ignored.
	MappingsJSON string
}

// Service resolves conversation ids to team ids. All methods are safe for
// concurrent use; Resolve itself never performs I/O.
type Service struct {
	mu            sync.RWMutex
	mappings      map[string]string // learned; authoritative for process lifetime
	configured    map[string]string // config file + environment table
	defaultTeamID string

	store DocumentStore
	log   *logger.Logger
	now   func() time.Time // test hook
}

// NewService builds a Service from config. store may be nil for memory-only
// use; Load/Save then fail with a clear error.
func NewService(cfg Config, store DocumentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("teammap")
	}

	s := &Service{
		mappings:      make(map[string]string),
		configured:    make(map[string]string, len(cfg.ChatMappings)),
		defaultTeamID: cfg.DefaultTeamID,
		store:         store,
		log:           log,
		now:           time.Now,
	}
	for conv, team := range cfg.ChatMappings {
		if conv != "" && team != "" {
			s.configured[conv] = team
		}
	}
	s.mergeMappingsJSON(cfg.MappingsJSON)
	return s
}

// mergeMappingsJSON folds the environment-provided JSON table into the
// configured layer. Environment entries win over file entries.
func (s *Service) mergeMappingsJSON(raw string) {
	if raw == "" {
		return
	}
	if !gjson.Valid(raw) {
		s.log.WithField("json", raw).Warn("TEAM_CHAT_MAPPINGS is not valid JSON, ignoring")
		return
	}

	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		s.log.Warn("TEAM_CHAT_MAPPINGS is not a JSON object, ignoring")
		return
	}
	added := 0
	parsed.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "" || value.Type != gjson.String || value.String() == "" {
			return true
		}
		s.configured[key.String()] = value.String()
		added++
		return true
	})
	if added > 0 {
		s.log.WithField("mappings", added).Debug("merged environment chat mappings")
	}
}

// Resolve maps a conversation id to a team id, walking memory, then the
// configured table, then the default team. A configured hit is written back
// into memory so the next call for the same conversation short-circuits.
func (s *Service) Resolve(conversationID string) (Resolution, error) {
	s.mu.RLock()
	if team, ok := s.mappings[conversationID]; ok {
		s.mu.RUnlock()
		return Resolution{TeamID: team, Source: SourceMemory, Exact: true}, nil
	}
	team, configured := s.configured[conversationID]
	defaultTeam := s.defaultTeamID
	s.mu.RUnlock()

	if configured {
		s.mu.Lock()
		// Another resolver may have learned it meanwhile; memory stays
		// authoritative either way.
		if learned, ok := s.mappings[conversationID]; ok {
			team = learned
		} else {
			s.mappings[conversationID] = team
		}
		s.mu.Unlock()
		return Resolution{TeamID: team, Source: SourceConfig, Exact: true}, nil
	}

	if defaultTeam != "" {
		return Resolution{TeamID: defaultTeam, Source: SourceDefault, Exact: false}, nil
	}
	return Resolution{}, ErrMappingNotFound
}

// SetDefaultTeamID changes the fallback team.
func (s *Service) SetDefaultTeamID(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultTeamID = teamID
}

// DefaultTeamID returns the current fallback team id.
func (s *Service) DefaultTeamID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultTeamID
}

// AddChatMapping upserts one conversation → team mapping into memory.
// Re-adding the same pair is a no-op.
func (s *Service) AddChatMapping(conversationID, teamID string) {
	if conversationID == "" || teamID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[conversationID] = teamID
}

// ClearMappings drops every learned mapping from memory. Configured and
// persisted mappings are untouched; the next resolves fall through to them.
func (s *Service) ClearMappings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = make(map[string]string)
}

// Stats is a diagnostic dump of the service state.
type Stats struct {
	Count         int               `json:"count"`
	Configured    int               `json:"configured"`
	DefaultTeamID string            `json:"default_team_id"`
	Mappings      map[string]string `json:"mappings"`
}

// MappingStats returns the learned-mapping count, the default team and a
// copy of the full memory table.
func (s *Service) MappingStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dump := make(map[string]string, len(s.mappings))
	for conv, team := range s.mappings {
		dump[conv] = team
	}
	return Stats{
		Count:         len(s.mappings),
		Configured:    len(s.configured),
		DefaultTeamID: s.defaultTeamID,
		Mappings:      dump,
	}
}
