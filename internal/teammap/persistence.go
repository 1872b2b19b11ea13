package teammap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/squadbot/platform_core/internal/store"
)

// Collection is the document collection holding persisted mappings.
const Collection = "team_mappings"

// Mapping is the persisted form of one conversation → team binding.
type Mapping struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	TeamID         string    `json:"team_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// DocumentStore is the slice of the platform document store the mapping
// service uses. *store.MemoryStore, *store.SupabaseStore and
// *store.PostgresStore all satisfy it.
type DocumentStore interface {
	QueryDocuments(ctx context.Context, collection string, filters map[string]interface{}) ([]store.Document, error)
	CreateDocument(ctx context.Context, collection string, doc store.Document) (string, error)
	UpdateDocument(ctx context.Context, collection, id string, doc store.Document) error
}

// ErrNoStore is returned by persistence calls on a memory-only service.
var ErrNoStore = errors.New("team mapping service has no document store")

// LoadMappingsFromStore bulk-loads persisted mappings into memory, normally
// once at startup. Documents missing either id field are skipped and
// counted in the log, never fatal. Returns how many mappings were loaded.
func (s *Service) LoadMappingsFromStore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrNoStore
	}

	docs, err := s.store.QueryDocuments(ctx, Collection, nil)
	if err != nil {
		return 0, fmt.Errorf("load team mappings: %w", err)
	}

	loaded, skipped := 0, 0
	s.mu.Lock()
	for _, doc := range docs {
		conv, _ := doc["conversation_id"].(string)
		team, _ := doc["team_id"].(string)
		if conv == "" || team == "" {
			skipped++
			continue
		}
		s.mappings[conv] = team
		loaded++
	}
	s.mu.Unlock()

	if skipped > 0 {
		s.log.WithField("skipped", skipped).Warn("ignored malformed team mapping documents")
	}
	s.log.WithField("mappings", loaded).Info("loaded team mappings from store")
	return loaded, nil
}

// SaveMappingToStore persists one mapping and updates memory. The store is
// the system of record across restarts; memory serves the hot path.
func (s *Service) SaveMappingToStore(ctx context.Context, conversationID, teamID string) error {
	if s.store == nil {
		return ErrNoStore
	}
	if conversationID == "" || teamID == "" {
		return fmt.Errorf("save team mapping: conversation id and team id are required")
	}

	existing, err := s.store.QueryDocuments(ctx, Collection, map[string]interface{}{
		"conversation_id": conversationID,
	})
	if err != nil {
		return fmt.Errorf("save team mapping: %w", err)
	}

	if len(existing) > 0 {
		doc := existing[0]
		doc["team_id"] = teamID
		if err := s.store.UpdateDocument(ctx, Collection, doc.ID(), doc); err != nil {
			return fmt.Errorf("save team mapping: %w", err)
		}
	} else {
		mapping := Mapping{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			TeamID:         teamID,
			CreatedAt:      s.now().UTC(),
		}
		doc := store.Document{
			"id":              mapping.ID,
			"conversation_id": mapping.ConversationID,
			"team_id":         mapping.TeamID,
			"created_at":      mapping.CreatedAt.Format(time.RFC3339),
		}
		if _, err := s.store.CreateDocument(ctx, Collection, doc); err != nil {
			return fmt.Errorf("save team mapping: %w", err)
		}
	}

	s.AddChatMapping(conversationID, teamID)
	s.log.WithFields(map[string]interface{}{
		"conversation_id": conversationID,
		"team_id":         teamID,
	}).Debug("persisted team mapping")
	return nil
}
