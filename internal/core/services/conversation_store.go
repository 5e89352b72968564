package services

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

// ConversationStore keeps the transcripts of recently used conversations in
// memory in front of the repository. Chat requests and poll goroutines append
// to it concurrently.
type ConversationStore struct {
	repo ports.Repository

	mu       sync.Mutex
	capacity int
	lru      *list.List // *transcript, most recently used at the front
	byID     map[domain.ConversationID]*list.Element
}

type transcript struct {
	id   domain.ConversationID
	msgs []domain.Message
}

func NewConversationStore(repo ports.Repository, capacity int) *ConversationStore {
	if capacity <= 0 {
		capacity = 64
	}
	return &ConversationStore{
		repo:     repo,
		capacity: capacity,
		lru:      list.New(),
		byID:     make(map[domain.ConversationID]*list.Element, capacity),
	}
}

// CreateConversation starts a conversation under a fresh id.
func (s *ConversationStore) CreateConversation(ctx context.Context, title string) (domain.Conversation, error) {
	return s.create(ctx, domain.NewConversationID(), title)
}

// EnsureConversation returns the conversation, creating it under the given id when missing.
func (s *ConversationStore) EnsureConversation(ctx context.Context, id domain.ConversationID, title string) (domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return conv, err
	}
	return s.create(ctx, id, title)
}

func (s *ConversationStore) create(ctx context.Context, id domain.ConversationID, title string) (domain.Conversation, error) {
	now := time.Now()
	conv := domain.Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	s.mu.Lock()
	s.putLocked(id, nil)
	s.mu.Unlock()
	return conv, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	return s.repo.GetConversation(ctx, id)
}

// ListConversations returns all conversations, most recently updated first.
func (s *ConversationStore) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	return s.repo.ListConversations(ctx)
}

// DeleteConversation removes the conversation and its transcript.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	if el, ok := s.byID[id]; ok {
		s.lru.Remove(el)
		delete(s.byID, id)
	}
	s.mu.Unlock()
	return nil
}

// AddMessage appends a message to an existing conversation. A resolution that
// arrives after its conversation was deleted fails with ErrConversationNotFound.
func (s *ConversationStore) AddMessage(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	_, cached := s.byID[msg.ConversationID]
	s.mu.Unlock()
	if !cached {
		if _, err := s.repo.GetConversation(ctx, msg.ConversationID); err != nil {
			return err
		}
	}

	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return err
	}

	s.mu.Lock()
	if el, ok := s.byID[msg.ConversationID]; ok {
		t := el.Value.(*transcript)
		t.msgs = append(t.msgs, msg)
		s.lru.MoveToFront(el)
	}
	s.mu.Unlock()
	return nil
}

// GetMessages returns the last limit messages in chronological order; limit=0 means all.
func (s *ConversationStore) GetMessages(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	if el, ok := s.byID[convID]; ok {
		s.lru.MoveToFront(el)
		out := lastN(el.Value.(*transcript).msgs, limit)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	msgs, err := s.repo.ListMessages(ctx, convID, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		s.mu.Lock()
		s.putLocked(convID, msgs)
		s.mu.Unlock()
	}
	return lastN(msgs, limit), nil
}

// BuildContextWindow renders the recent transcript as prompt history. Render
// jobs appear once, reduced to their latest state and player link, so a
// placeholder followed by its resolution does not read as two videos.
func (s *ConversationStore) BuildContextWindow(ctx context.Context, convID domain.ConversationID, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = 20
	}
	msgs, err := s.GetMessages(ctx, convID, 0)
	if err != nil {
		return "", err
	}
	lines := historyLines(msgs)
	if len(lines) == 0 {
		return "", nil
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func historyLines(msgs []domain.Message) []string {
	latest := make(map[string]int)
	for i, m := range msgs {
		if id := renderJobOf(m); id != "" {
			latest[id] = i
		}
	}

	lines := make([]string, 0, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			lines = append(lines, "User: "+m.Content)
		case domain.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		case domain.RoleSystem:
			lines = append(lines, "System: "+m.Content)
		case domain.RoleTool:
			id := renderJobOf(m)
			if id == "" {
				lines = append(lines, "Observation: "+m.Content)
				continue
			}
			if latest[id] == i {
				lines = append(lines, videoLine(id, m.Metadata))
			}
		}
	}
	return lines
}

func renderJobOf(m domain.Message) string {
	if m.Role != domain.RoleTool {
		return ""
	}
	id, _ := m.Metadata["asset_id"].(string)
	return id
}

func videoLine(id string, meta map[string]interface{}) string {
	state, _ := meta["state"].(string)
	line := fmt.Sprintf("Video %s: %s", id, state)
	if url, _ := meta["player_url"].(string); url != "" {
		line += " at " + url
	}
	return line
}

func lastN(msgs []domain.Message, n int) []domain.Message {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]domain.Message(nil), msgs...)
}

// putLocked caches a transcript unless one is already cached, evicting the
// least recently used beyond capacity.
func (s *ConversationStore) putLocked(id domain.ConversationID, msgs []domain.Message) {
	if el, ok := s.byID[id]; ok {
		s.lru.MoveToFront(el)
		return
	}
	s.byID[id] = s.lru.PushFront(&transcript{id: id, msgs: msgs})
	for s.lru.Len() > s.capacity {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.byID, oldest.Value.(*transcript).id)
	}
}
