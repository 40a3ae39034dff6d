package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/keyring"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
)

// DecryptedMessage is a stored message as the local participant sees it.
// When Readable is false, Text is UnreadablePlaceholder and Err says why.
// Media messages carry no Text; their bytes come from Session.DecryptMedia.
//
// For media, Readable only means the conversation key resolved. The blob is
// fetched and authenticated by DecryptMedia, so media messages are Pending
// until then.
type DecryptedMessage struct {
	store.Message
	Text     string
	Readable bool
	Pending  bool
	Err      error
}

// Session is one open conversation with its resolved key. The key is
// read-only once the session reaches StateKeyReady.
type Session struct {
	mu       sync.RWMutex
	conv     *store.Conversation
	identity string
	backend  store.Backend
	log      logger.Logger
	now      func() time.Time

	state  State
	key    secrets.SymmetricKey
	method secrets.Distribution
	err    error
}

// ID returns the conversation ID.
func (s *Session) ID() uuid.UUID {
	return s.conv.ID
}

// Participants returns a copy of the participant list.
func (s *Session) Participants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.conv.Participants...)
}

// Entry returns the key entry held for identity.
func (s *Session) Entry(identity string) (store.KeyEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.conv.WrappedKeys[identity]
	return entry, ok
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns why the key is unavailable, or nil.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Epoch returns the conversation's key epoch.
func (s *Session) Epoch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv.KeyEpoch
}

// Method returns how the local key copy was actually resolved.
func (s *Session) Method() secrets.Distribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.method
}

func (s *Session) ready(key secrets.SymmetricKey, method secrets.Distribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateKeyReady
	s.key = key
	s.method = method
	s.err = nil
}

func (s *Session) unavailable(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateKeyUnavailable
	s.err = fmt.Errorf("%w: %w", kerrors.ErrKeyUnavailable, cause)
}

// resolve finds the local key copy: unwrap with the private key first,
// then read the value as a raw exported key.
func (s *Session) resolve(keys *keyring.Manager) {
	s.mu.Lock()
	s.state = StateKeyResolving
	entry, ok := s.conv.WrappedKeys[s.identity]
	epoch := s.conv.KeyEpoch
	s.mu.Unlock()

	if !ok {
		s.unavailable(fmt.Errorf("%w: %s", kerrors.ErrParticipantKeyMissing, s.identity))
		return
	}
	if entry.Epoch != epoch {
		s.unavailable(fmt.Errorf("%w: entry epoch %d, conversation epoch %d", kerrors.ErrKeyEpochMismatch, entry.Epoch, epoch))
		return
	}

	var cause error
	switch entry.Method {
	case secrets.DistributionWrappedByRSA, "":
		priv, loaded := keys.PrivateKey()
		if !loaded {
			cause = kerrors.ErrNoKeyLoaded
			break
		}
		key, err := secrets.UnwrapKey(entry.Value, priv)
		if err == nil {
			s.ready(key, secrets.DistributionWrappedByRSA)
			return
		}
		cause = err
		if entry.Method != "" {
			s.unavailable(cause)
			return
		}
	case secrets.DistributionRawExported:
	default:
		s.unavailable(fmt.Errorf("unknown distribution method %q", entry.Method))
		return
	}

	key, err := secrets.ImportSymmetricKey(entry.Value)
	if err == nil {
		s.ready(key, secrets.DistributionRawExported)
		return
	}
	if cause == nil {
		cause = err
	}
	s.unavailable(cause)
}

// activeKey returns the key and epoch, or ErrKeyUnavailable.
func (s *Session) activeKey() (secrets.SymmetricKey, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateKeyReady {
		if s.err != nil {
			return secrets.SymmetricKey{}, 0, s.err
		}
		return secrets.SymmetricKey{}, 0, kerrors.ErrKeyUnavailable
	}
	return s.key, s.conv.KeyEpoch, nil
}

func (s *Session) applyEntries(entries store.WrappedKeyMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for identity, entry := range entries {
		s.conv.WrappedKeys[identity] = entry
		if !s.conv.HasParticipant(identity) {
			s.conv.Participants = append(s.conv.Participants, identity)
		}
	}
}

// SendText encrypts text and stores it as a new message.
func (s *Session) SendText(ctx context.Context, text string) (*store.Message, error) {
	key, epoch, err := s.activeKey()
	if err != nil {
		return nil, err
	}

	payload, err := secrets.EncryptText(text, key)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.New(),
		ConversationID: s.ID(),
		Sender:         s.identity,
		Kind:           store.KindText,
		Ciphertext:     payload.Ciphertext,
		IV:             payload.IV,
		KeyEpoch:       epoch,
		CreatedAt:      s.now(),
	}
	if err := s.insert(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendFile encrypts data, uploads it as a blob and stores a media message
// pointing at it. name and mimeType are stored alongside in the clear.
func (s *Session) SendFile(ctx context.Context, name, mimeType string, data []byte) (*store.Message, error) {
	key, epoch, err := s.activeKey()
	if err != nil {
		return nil, err
	}

	payload, err := secrets.EncryptFile(data, key)
	if err != nil {
		return nil, err
	}

	ref := store.NewMediaRef(s.ID())
	if err := s.backend.Blobs.PutBlob(ctx, ref, payload.Ciphertext); err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &store.Message{
		ID:             uuid.New(),
		ConversationID: s.ID(),
		Sender:         s.identity,
		Kind:           store.KindMedia,
		MediaRef:       ref,
		MediaName:      name,
		MediaType:      mimeType,
		IV:             payload.IV,
		KeyEpoch:       epoch,
		CreatedAt:      s.now(),
	}
	if err := s.insert(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Session) insert(ctx context.Context, msg *store.Message) error {
	if err := s.backend.Messages.InsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	if err := s.backend.Conversations.TouchConversation(ctx, s.ID(), msg.CreatedAt); err != nil {
		s.log.Warnf("Failed to update last activity of conversation %s: %v", s.ID(), err)
	}
	return nil
}

// Decrypt decrypts one stored message. It never fails; unreadable
// messages come back with Readable false and the placeholder text.
func (s *Session) Decrypt(msg store.Message) DecryptedMessage {
	out := DecryptedMessage{Message: msg}

	key, epoch, err := s.activeKey()
	if err != nil {
		return out.unreadable(err)
	}
	if msg.KeyEpoch != epoch {
		return out.unreadable(fmt.Errorf("%w: message epoch %d, session epoch %d", kerrors.ErrKeyEpochMismatch, msg.KeyEpoch, epoch))
	}

	switch msg.Kind {
	case store.KindMedia:
		out.Readable = true
		out.Pending = true
	default:
		text, err := secrets.DecryptText(msg.Ciphertext, msg.IV, key)
		if err != nil {
			return out.unreadable(err)
		}
		out.Text = text
		out.Readable = true
	}
	return out
}

func (m DecryptedMessage) unreadable(err error) DecryptedMessage {
	m.Text = UnreadablePlaceholder
	m.Readable = false
	m.Err = err
	return m
}

// History returns every message of the conversation, decrypted where
// possible.
func (s *Session) History(ctx context.Context) ([]DecryptedMessage, error) {
	msgs, err := s.backend.Messages.Messages(ctx, s.ID())
	if err != nil {
		return nil, err
	}

	out := make([]DecryptedMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, s.Decrypt(msg))
	}
	return out, nil
}

// DecryptMedia downloads and decrypts the blob of a media message.
func (s *Session) DecryptMedia(ctx context.Context, msg store.Message) ([]byte, error) {
	if msg.Kind != store.KindMedia {
		return nil, fmt.Errorf("message %s is not a media message", msg.ID)
	}
	key, epoch, err := s.activeKey()
	if err != nil {
		return nil, err
	}
	if msg.KeyEpoch != epoch {
		return nil, fmt.Errorf("%w: message epoch %d, session epoch %d", kerrors.ErrKeyEpochMismatch, msg.KeyEpoch, epoch)
	}

	ciphertext, err := s.backend.Blobs.Blob(ctx, msg.MediaRef)
	if err != nil {
		return nil, err
	}
	return secrets.DecryptFile(ciphertext, msg.IV, key)
}

// Watch delivers each message newly inserted into the conversation to fn,
// decrypted where possible, until ctx is done or the feed closes.
func (s *Session) Watch(ctx context.Context, feed store.ChangeFeed, fn func(DecryptedMessage)) error {
	ch, err := feed.Subscribe(ctx, s.ID())
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			fn(s.Decrypt(msg))
		}
	}
}
