package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/store"
)

// subscriberBuffer is the channel capacity of each change-feed subscriber.
const subscriberBuffer = 64

// Store keeps every record in process memory. It implements all of the
// store interfaces and is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	profiles      map[string]string
	conversations map[uuid.UUID]*store.Conversation
	messages      map[uuid.UUID][]store.Message
	blobs         map[string][]byte
	seq           int64

	subMu       sync.Mutex
	subscribers map[uuid.UUID]map[*subscriber]struct{}
}

type subscriber struct {
	mu     sync.Mutex
	ctx    context.Context
	ch     chan store.Message
	closed bool
}

var (
	_ store.ProfileStore      = (*Store)(nil)
	_ store.ConversationStore = (*Store)(nil)
	_ store.MessageStore      = (*Store)(nil)
	_ store.BlobStore         = (*Store)(nil)
	_ store.ChangeFeed        = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		profiles:      make(map[string]string),
		conversations: make(map[uuid.UUID]*store.Conversation),
		messages:      make(map[uuid.UUID][]store.Message),
		blobs:         make(map[string][]byte),
		subscribers:   make(map[uuid.UUID]map[*subscriber]struct{}),
	}
}

// Backend returns the Store wired as every member of a store.Backend.
func (s *Store) Backend() store.Backend {
	return store.Backend{Profiles: s, Conversations: s, Messages: s, Blobs: s}
}

func (s *Store) PublicKey(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.profiles[identity]
	if !ok {
		return "", fmt.Errorf("%w: %s", kerrors.ErrPublicKeyNotFound, identity)
	}
	return key, nil
}

func (s *Store) PublishPublicKey(ctx context.Context, identity, publicKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identity] = publicKey
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *Store) Conversation(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	return cloneConversation(conv), nil
}

func (s *Store) UpdateWrappedKeys(ctx context.Context, id uuid.UUID, entries store.WrappedKeyMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	for identity, entry := range entries {
		conv.WrappedKeys[identity] = entry
		if !conv.HasParticipant(identity) {
			conv.Participants = append(conv.Participants, identity)
		}
	}
	return nil
}

func (s *Store) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	if at.After(conv.LastActivity) {
		conv.LastActivity = at
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, msg.ConversationID)
	}
	s.seq++
	msg.Seq = s.seq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], stored)
	s.mu.Unlock()

	s.publish(stored)
	return nil
}

func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	return s.MessagesSince(ctx, conversationID, 0)
}

func (s *Store) MessagesSince(ctx context.Context, conversationID uuid.UUID, afterSeq int64) ([]store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	// Seq increases with insertion order, so the slice is already sorted.
	i := sort.Search(len(all), func(i int) bool { return all[i].Seq > afterSeq })
	out := make([]store.Message, len(all)-i)
	copy(out, all[i:])
	return out, nil
}

func (s *Store) PutBlob(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Blob(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrBlobNotFound, ref)
	}
	return append([]byte{}, data...), nil
}

// Subscribe registers for messages inserted after the call. Delivery
// blocks the inserting goroutine while the subscriber's buffer is full;
// the channel is closed once ctx is done.
func (s *Store) Subscribe(ctx context.Context, conversationID uuid.UUID) (<-chan store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscriber{ctx: ctx, ch: make(chan store.Message, subscriberBuffer)}

	s.subMu.Lock()
	if s.subscribers[conversationID] == nil {
		s.subscribers[conversationID] = make(map[*subscriber]struct{})
	}
	s.subscribers[conversationID][sub] = struct{}{}
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subscribers[conversationID], sub)
		if len(s.subscribers[conversationID]) == 0 {
			delete(s.subscribers, conversationID)
		}
		s.subMu.Unlock()

		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}()

	return sub.ch, nil
}

func (s *Store) publish(msg store.Message) {
	s.subMu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers[msg.ConversationID]))
	for sub := range s.subscribers[msg.ConversationID] {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
}

func (sub *subscriber) deliver(msg store.Message) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.ch <- msg:
	case <-sub.ctx.Done():
	}
}

func cloneConversation(conv *store.Conversation) *store.Conversation {
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	out.WrappedKeys = make(store.WrappedKeyMap, len(conv.WrappedKeys))
	for identity, entry := range conv.WrappedKeys {
		out.WrappedKeys[identity] = entry
	}
	return &out
}
