package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asterixix/tecza/internal/audit"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/keyring"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
)

// currentEpoch is the only key epoch in use. Keys are never rotated.
const currentEpoch = 0

// Service creates and opens conversations on behalf of one local identity.
type Service struct {
	keys     *keyring.Manager
	identity string
	backend  store.Backend
	log      logger.Logger
	trail    *audit.Trail
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for distribution warnings and debug output.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithAuditTrail records conversation lifecycle events in trail.
func WithAuditTrail(trail *audit.Trail) Option {
	return func(s *Service) {
		s.trail = trail
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service acting as identity, taking key material
// from keys and persisting through backend.
func NewService(keys *keyring.Manager, identity string, backend store.Backend, opts ...Option) *Service {
	s := &Service{
		keys:     keys,
		identity: identity,
		backend:  backend,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity returns the local identity.
func (s *Service) Identity() string {
	return s.identity
}

// Create starts a conversation between the local identity and
// participants under a fresh conversation key.
//
// Every entry is wrapped when every participant has published a public
// key. Otherwise every entry is raw-exported, since one raw copy already
// exposes the key to the store.
func (s *Service) Create(ctx context.Context, participants []string) (*Session, error) {
	if s.identity == "" {
		return nil, fmt.Errorf("%w: local identity is not set", kerrors.ErrInvalidConfig)
	}
	members := normalizeParticipants(s.identity, participants)
	if len(members) < 2 {
		return nil, kerrors.ErrNoParticipants
	}

	recipients := make(map[string]*secrets.PublicKey, len(members))
	var missing []string
	for _, member := range members {
		pub, err := s.recipientKey(ctx, member)
		if err != nil {
			return nil, err
		}
		if pub == nil {
			missing = append(missing, member)
		}
		recipients[member] = pub
	}

	key, err := secrets.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}

	entries := make(store.WrappedKeyMap, len(members))
	for _, member := range members {
		recipient := recipients[member]
		if len(missing) > 0 {
			recipient = nil
		}
		method, value, err := secrets.Distribute(key, recipient)
		if err != nil {
			return nil, err
		}
		entries[member] = store.KeyEntry{Method: method, Value: value, Epoch: currentEpoch}
	}

	now := s.now()
	conv := &store.Conversation{
		ID:           uuid.New(),
		Participants: members,
		KeyEpoch:     currentEpoch,
		WrappedKeys:  entries,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.backend.Conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	counts := entries.Counts()
	if len(missing) > 0 {
		s.log.Warnf("Conversation %s uses raw key distribution: no public key published for %s", conv.ID, strings.Join(missing, ", "))
	} else {
		s.log.Infof("Conversation %s created with wrapped keys for %d participants", conv.ID, len(members))
	}
	s.record(audit.Entry{
		Operation:      audit.OpConversationCreate,
		ConversationID: conv.ID.String(),
		WrappedCount:   counts[secrets.DistributionWrappedByRSA],
		RawCount:       counts[secrets.DistributionRawExported],
	})

	sess := s.newSession(conv)
	sess.ready(key, entries[s.identity].Method)
	return sess, nil
}

// Open loads a conversation and resolves the local copy of its key. Key
// problems leave the session in StateKeyUnavailable; only store errors
// are returned.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Session, error) {
	conv, err := s.backend.Conversations.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}

	sess := s.newSession(conv)
	sess.resolve(s.keys)

	if sess.State() == StateKeyUnavailable {
		s.log.Warnf("Key for conversation %s is unavailable: %v", id, sess.Err())
	} else {
		s.log.Debugf("Resolved key for conversation %s via %s", id, sess.Method())
	}
	return sess, nil
}

// Grant gives identity a copy of the session's conversation key, wrapped
// for its current public key or raw-exported if it has none. The key is
// not rotated. It returns the method used.
func (s *Service) Grant(ctx context.Context, sess *Session, identity string) (secrets.Distribution, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", kerrors.ErrNoParticipants
	}
	key, epoch, err := sess.activeKey()
	if err != nil {
		return "", err
	}

	pub, err := s.recipientKey(ctx, identity)
	if err != nil {
		return "", err
	}
	method, value, err := secrets.Distribute(key, pub)
	if err != nil {
		return "", err
	}

	entry := store.KeyEntry{Method: method, Value: value, Epoch: epoch}
	if err := s.backend.Conversations.UpdateWrappedKeys(ctx, sess.ID(), store.WrappedKeyMap{identity: entry}); err != nil {
		return "", err
	}
	sess.applyEntries(store.WrappedKeyMap{identity: entry})

	if method == secrets.DistributionRawExported {
		s.log.Warnf("Granted %s a raw key for conversation %s: no public key published", identity, sess.ID())
	}
	s.record(audit.Entry{
		Operation:      audit.OpGrant,
		ConversationID: sess.ID().String(),
		Target:         identity,
		Method:         string(method),
	})
	return method, nil
}

// Migrate re-wraps every raw-exported entry whose participant has since
// published a public key. It returns how many entries were migrated.
// Nothing is migrated automatically.
func (s *Service) Migrate(ctx context.Context, sess *Session) (int, error) {
	key, epoch, err := sess.activeKey()
	if err != nil {
		return 0, err
	}

	conv, err := s.backend.Conversations.Conversation(ctx, sess.ID())
	if err != nil {
		return 0, err
	}

	updates := make(store.WrappedKeyMap)
	remaining := 0
	for identity, entry := range conv.WrappedKeys {
		if !isRawEntry(entry) {
			continue
		}
		pub, err := s.recipientKey(ctx, identity)
		if err != nil {
			return 0, err
		}
		if pub == nil {
			remaining++
			continue
		}
		wrapped, err := secrets.WrapKey(key, pub)
		if err != nil {
			return 0, err
		}
		updates[identity] = store.KeyEntry{Method: secrets.DistributionWrappedByRSA, Value: wrapped, Epoch: epoch}
	}

	if len(updates) == 0 {
		s.log.Infof("No entries of conversation %s can be migrated (%d without public keys)", sess.ID(), remaining)
		return 0, nil
	}

	if err := s.backend.Conversations.UpdateWrappedKeys(ctx, sess.ID(), updates); err != nil {
		return 0, err
	}
	sess.applyEntries(updates)

	if remaining > 0 {
		s.log.Warnf("%d entries of conversation %s remain raw: no public key published", remaining, sess.ID())
	}
	s.record(audit.Entry{
		Operation:      audit.OpMigrate,
		ConversationID: sess.ID().String(),
		WrappedCount:   len(updates),
		RawCount:       remaining,
	})
	return len(updates), nil
}

// recipientKey returns the public key to wrap for identity, or nil when
// none is published. The local identity uses the keyring's key if loaded.
func (s *Service) recipientKey(ctx context.Context, identity string) (*secrets.PublicKey, error) {
	if identity == s.identity {
		if pub, ok := s.keys.PublicKey(); ok {
			return pub, nil
		}
	}

	encoded, err := s.backend.Profiles.PublicKey(ctx, identity)
	if errors.Is(err, kerrors.ErrPublicKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up public key for %s: %w", identity, err)
	}

	pub, err := secrets.ImportPublicKey(encoded)
	if err != nil {
		s.log.Warnf("Ignoring unusable public key published by %s: %v", identity, err)
		return nil, nil
	}
	return pub, nil
}

func (s *Service) newSession(conv *store.Conversation) *Session {
	return &Session{
		conv:     conv,
		identity: s.identity,
		backend:  s.backend,
		log:      s.log,
		now:      s.now,
	}
}

func (s *Service) record(entry audit.Entry) {
	entry.Identity = s.identity
	if fp, ok := s.keys.Fingerprint(); ok {
		entry.Fingerprint = fp
	}
	s.trail.Log(entry)
}

// normalizeParticipants trims, deduplicates and puts self first.
func normalizeParticipants(self string, participants []string) []string {
	seen := map[string]struct{}{self: {}}
	members := []string{self}
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		members = append(members, p)
	}
	return members
}

// isRawEntry reports whether entry holds a raw-exported key, including
// legacy untagged entries whose value imports as one.
func isRawEntry(entry store.KeyEntry) bool {
	switch entry.Method {
	case secrets.DistributionRawExported:
		return true
	case "":
		_, err := secrets.ImportSymmetricKey(entry.Value)
		return err == nil
	default:
		return false
	}
}
