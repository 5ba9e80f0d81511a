package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/pkg/apperrors"
)

// Memory is an in-process implementation of all four store interfaces.
// It backs single-instance deployments without Mongo and every unit test.
type Memory struct {
	mu sync.RWMutex

	convs    map[string]*models.Conversation // id -> conversation
	convByPk map[string]string               // "user1|user2" canonical -> id

	msgs   map[string]*models.Message
	seq    map[string]int64 // message id -> insertion order
	nextSq int64

	profiles map[string]*models.ChatProfile
	users    map[string]*models.User // id -> user
}

func NewMemory() *Memory {
	return &Memory{
		convs:    make(map[string]*models.Conversation),
		convByPk: make(map[string]string),
		msgs:     make(map[string]*models.Message),
		seq:      make(map[string]int64),
		profiles: make(map[string]*models.ChatProfile),
		users:    make(map[string]*models.User),
	}
}

// AddUser seeds the in-memory user directory.
func (s *Memory) AddUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// SetPreferences seeds a user's notification toggles. The settings screen that
// writes these lives in the CRM service, not here.
func (s *Memory) SetPreferences(userID string, readReceipts, typing, notifyNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	p.ShowReadReceipts = readReceipts
	p.ShowTypingIndicators = typing
	p.NotifyNewMessages = notifyNew
	p.UpdatedAt = time.Now().UTC()
}

func (s *Memory) ByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperrors.NotFound("user not found")
}

func (s *Memory) ByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("user not found")
}

func (s *Memory) GetOrCreate(_ context.Context, userA, userB string) (*models.Conversation, bool, error) {
	u1, u2 := models.CanonicalPair(userA, userB)
	key := u1 + "|" + u2

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.convByPk[key]; ok {
		c := s.convs[id]
		if !c.IsActive {
			c.IsActive = true
			c.UpdatedAt = time.Now().UTC()
		}
		cp := *c
		return &cp, false, nil
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:        uuid.NewString(),
		User1ID:   u1,
		User2ID:   u2,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[c.ID] = c
	s.convByPk[key] = c.ID
	cp := *c
	return &cp, true, nil
}

func (s *Memory) Touch(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) SetActive(_ context.Context, conversationID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	c.IsActive = active
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Conversation returns a copy of the record, for tests and the notifier.
func (s *Memory) Conversation(id string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (s *Memory) Create(_ context.Context, p CreateMessage) (*models.Message, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" && p.ImageURL == "" {
		return nil, apperrors.Validation("message content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[p.ConversationID]; !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	now := time.Now().UTC()
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Text:           text,
		ImageURL:       p.ImageURL,
		ThumbnailURL:   p.ThumbnailURL,
		Status:         models.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextSq++
	s.msgs[m.ID] = m
	s.seq[m.ID] = s.nextSq
	cp := *m
	return &cp, nil
}

func (s *Memory) Get(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	cp := *m
	return &cp, nil
}

// visible messages of one conversation for a viewer, oldest first.
func (s *Memory) visibleLocked(conversationID, viewerID string) []*models.Message {
	out := make([]*models.Message, 0)
	for _, m := range s.msgs {
		if m.ConversationID != conversationID || m.IsDeletedFor(viewerID) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

func (s *Memory) ListRecent(_ context.Context, conversationID, viewerID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.visibleLocked(conversationID, viewerID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return copyMessages(all), nil
}

func (s *Memory) ListBefore(_ context.Context, conversationID, viewerID, beforeID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff, ok := s.seq[beforeID]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	all := s.visibleLocked(conversationID, viewerID)
	older := make([]*models.Message, 0)
	for _, m := range all {
		if s.seq[m.ID] < cutoff {
			older = append(older, m)
		}
	}
	// newest first, like the wire format expects for load_more pages
	out := make([]*models.Message, 0, limit)
	for i := len(older) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *older[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Memory) MarkRead(_ context.Context, conversationID, viewerID string, messageIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range messageIDs {
		m, ok := s.msgs[id]
		if !ok || m.ConversationID != conversationID || m.SenderID == viewerID {
			continue
		}
		if m.Status == models.StatusSent || m.Status == models.StatusDelivered {
			m.Status = models.StatusRead
			m.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *Memory) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return apperrors.NotFound("message not found")
	}
	if m.Status == models.StatusSent {
		m.Status = models.StatusDelivered
		m.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Memory) Delete(_ context.Context, id, requesterID string, forEveryone bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return false, nil
	}
	if forEveryone {
		if m.SenderID != requesterID {
			return false, apperrors.Forbidden("only the sender can delete for everyone")
		}
		delete(s.msgs, id)
		delete(s.seq, id)
		return true, nil
	}
	if !m.IsDeletedFor(requesterID) {
		m.DeletedFor = append(m.DeletedFor, requesterID)
	}
	return true, nil
}

func (s *Memory) UpdateText(_ context.Context, id, requesterID, newText string) (bool, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return false, apperrors.Validation("new text is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return false, nil
	}
	if m.SenderID != requesterID {
		return false, apperrors.Forbidden("only the sender can edit a message")
	}
	m.Text = newText
	m.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Memory) Profile(_ context.Context, userID string) (*models.ChatProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	cp := *p
	return &cp, nil
}

func (s *Memory) profileLocked(userID string) *models.ChatProfile {
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	now := time.Now().UTC()
	p := &models.ChatProfile{
		UserID:               userID,
		ShowReadReceipts:     true,
		ShowTypingIndicators: true,
		NotifyNewMessages:    true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.profiles[userID] = p
	return p
}

func (s *Memory) SetOnline(_ context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	if p.IsOnline && !online {
		p.LastSeen = time.Now().UTC()
	}
	p.IsOnline = online
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p.IsOnline, nil
	}
	return false, nil
}

func (s *Memory) SetCustomStatus(_ context.Context, userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	p.CustomStatus = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func copyMessages(in []*models.Message) []*models.Message {
	out := make([]*models.Message, len(in))
	for i, m := range in {
		cp := *m
		out[i] = &cp
	}
	return out
}
