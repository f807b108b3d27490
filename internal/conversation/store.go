package conversation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// recordKeyPrefix namespaces one KV record per script
	recordKeyPrefix = "conversation:"
	// legacyKey is the well-known key of the old single-blob JSON format
	legacyKey = "conversations.json"

	// saveThrottle bounds write amplification while a response streams in.
	// Phase transitions bypass it via Flush.
	saveThrottle = 1000 * time.Millisecond
)

// Store owns all conversations and their generations. Response text of the
// latest generation is the only mutable field; every earlier generation is
// sealed once a newer one is appended.
type Store struct {
	kv     KV
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	byID     map[string]*Conversation
	byScript map[string]string // scriptID -> conversationID
	lastSave map[string]time.Time
	onSave   func(success bool)
}

// SetSaveHook registers an observer called after every persistence attempt.
// Must be set before the store is shared across goroutines.
func (s *Store) SetSaveHook(hook func(success bool)) {
	s.onSave = hook
}

// NewStore loads all persisted conversations, running the legacy-format
// migration first if the old blob is present.
func NewStore(kv KV, logger *slog.Logger) (*Store, error) {
	s := &Store{
		kv:       kv,
		logger:   logger,
		now:      time.Now,
		byID:     make(map[string]*Conversation),
		byScript: make(map[string]string),
		lastSave: make(map[string]time.Time),
	}

	if err := s.migrateLegacy(); err != nil {
		// Migration failure leaves the legacy blob in place for a later retry.
		logger.Error("Legacy conversation migration failed", "error", err)
	}

	if err := s.loadAll(); err != nil {
		return nil, err
	}

	return s, nil
}

// Create starts a new conversation for a script
func (s *Store) Create(scriptID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byScript[scriptID]; ok {
		return nil, fmt.Errorf("script %s already has conversation %s", scriptID, existing)
	}

	now := s.now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		ScriptID:  scriptID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[conv.ID] = conv
	s.byScript[scriptID] = conv.ID

	s.save(conv, true)
	return conv.clone(), nil
}

// Get returns a copy of the conversation with the given id
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return conv.clone(), true
}

// GetByScript returns a copy of the conversation owned by the given script
func (s *Store) GetByScript(scriptID string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byScript[scriptID]
	if !ok {
		return nil, false
	}
	return s.byID[id].clone(), true
}

// List returns copies of all conversations
func (s *Store) List() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c.clone())
	}
	return out
}

// AppendGeneration seals the previous generation and starts a new one with an
// empty response.
func (s *Store) AppendGeneration(id string, messages []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}

	conv.Generations = append(conv.Generations, Generation{
		Messages:  append([]ChatMessage(nil), messages...),
		Timestamp: s.now(),
	})
	conv.UpdatedAt = s.now()

	s.save(conv, true)
	return nil
}

// UpdateLatestResponse replaces the response of the newest generation. This is
// the single mutation path used during streaming; it is a silent no-op when
// the conversation has no generations yet. Saves are throttled.
func (s *Store) UpdateLatestResponse(id, response string, cachedTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}

	latest := conv.Latest()
	if latest == nil {
		return nil
	}

	latest.Response = response
	if cachedTokens > 0 {
		latest.CachedTokens = cachedTokens
	}
	conv.UpdatedAt = s.now()

	s.save(conv, false)
	return nil
}

// GetLatestResponse returns the newest generation's response text
func (s *Store) GetLatestResponse(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("conversation %s not found", id)
	}
	if latest := conv.Latest(); latest != nil {
		return latest.Response, nil
	}
	return "", nil
}

// Flush forces an immediate save, bypassing the streaming throttle. Used at
// phase transitions and on error so milestones are never lost to throttling.
func (s *Store) Flush(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.byID[id]; ok {
		s.save(conv, true)
	}
}

// Delete removes a conversation and its persisted record
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}

	delete(s.byID, id)
	delete(s.byScript, conv.ScriptID)
	delete(s.lastSave, id)

	if err := s.kv.Delete(recordKeyPrefix + conv.ScriptID); err != nil {
		s.logger.Error("Failed to delete conversation record", "conversation_id", id, "error", err)
	}
	return nil
}

// save persists a conversation, throttled during streaming unless forced.
// Persistence failures are logged and swallowed: a failed save must never
// crash the generation loop. Callers hold s.mu.
func (s *Store) save(conv *Conversation, force bool) {
	now := s.now()
	if !force {
		if last, ok := s.lastSave[conv.ID]; ok && now.Sub(last) < saveThrottle {
			return
		}
	}
	s.lastSave[conv.ID] = now

	data, err := Serialize(conv)
	if err == nil {
		err = s.kv.Set(recordKeyPrefix+conv.ScriptID, data)
	}
	if err != nil {
		s.logger.Error("Failed to persist conversation", "conversation_id", conv.ID, "error", err)
	}
	if s.onSave != nil {
		s.onSave(err == nil)
	}
}

func (s *Store) loadAll() error {
	keys, err := s.kv.Keys(recordKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list conversation records: %w", err)
	}

	for _, key := range keys {
		data, ok, err := s.kv.Get(key)
		if err != nil || !ok {
			s.logger.Warn("Failed to read conversation record", "key", key, "error", err)
			continue
		}
		conv, err := Parse(data)
		if err != nil {
			s.logger.Warn("Skipping unparsable conversation record", "key", key, "error", err)
			continue
		}
		s.byID[conv.ID] = conv
		s.byScript[conv.ScriptID] = conv.ID
	}

	s.logger.Debug("Loaded conversations", "count", len(s.byID))
	return nil
}

// legacyConversation mirrors the old single-blob JSON schema
type legacyConversation struct {
	ID          string `json:"id"`
	ScriptID    string `json:"scriptId"`
	Generations []struct {
		Messages     []ChatMessage `json:"messages"`
		Response     string        `json:"response"`
		CachedTokens int           `json:"cachedTokens"`
		Timestamp    time.Time     `json:"timestamp"`
	} `json:"generations"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// migrateLegacy converts the old single-JSON-array blob into per-script block
// records and deletes the blob. Running it again with no blob present is a
// no-op, so the migration is idempotent.
func (s *Store) migrateLegacy() error {
	data, ok, err := s.kv.Get(legacyKey)
	if err != nil {
		return fmt.Errorf("failed to read legacy blob: %w", err)
	}
	if !ok {
		return nil
	}

	var legacy []legacyConversation
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse legacy blob: %w", err)
	}

	for _, lc := range legacy {
		conv := &Conversation{
			ID:        lc.ID,
			ScriptID:  lc.ScriptID,
			CreatedAt: lc.CreatedAt,
			UpdatedAt: lc.UpdatedAt,
		}
		for _, g := range lc.Generations {
			conv.Generations = append(conv.Generations, Generation(g))
		}

		out, err := Serialize(conv)
		if err != nil {
			return fmt.Errorf("failed to serialize migrated conversation %s: %w", lc.ID, err)
		}
		if err := s.kv.Set(recordKeyPrefix+conv.ScriptID, out); err != nil {
			return fmt.Errorf("failed to write migrated conversation %s: %w", lc.ID, err)
		}
	}

	if err := s.kv.Delete(legacyKey); err != nil {
		return fmt.Errorf("failed to delete legacy blob: %w", err)
	}

	s.logger.Info("Migrated legacy conversation store", "count", len(legacy))
	return nil
}
