package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asterixix/tecza/internal/secrets"
)

// MessageKind distinguishes text messages from media messages.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
)

// KeyEntry is one participant's copy of the conversation key. Method tells
// how Value must be read; an empty Method is a legacy entry whose method
// has to be found by trial.
type KeyEntry struct {
	Method secrets.Distribution `json:"method,omitempty"`
	Value  string               `json:"value"`
	Epoch  int                  `json:"epoch"`
}

// WrappedKeyMap holds exactly one KeyEntry per participant identity.
type WrappedKeyMap map[string]KeyEntry

// Counts returns how many entries use each distribution method.
func (m WrappedKeyMap) Counts() map[secrets.Distribution]int {
	counts := make(map[secrets.Distribution]int, 2)
	for _, entry := range m {
		counts[entry.Method]++
	}
	return counts
}

// Conversation is the stored conversation record.
type Conversation struct {
	ID           uuid.UUID     `json:"id"`
	Participants []string      `json:"participants"`
	KeyEpoch     int           `json:"key_epoch"`
	WrappedKeys  WrappedKeyMap `json:"wrapped_keys"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// HasParticipant reports whether identity takes part in the conversation.
func (c *Conversation) HasParticipant(identity string) bool {
	for _, p := range c.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Message is the stored, encrypted form of a message. For text messages
// Ciphertext holds base64 AES-GCM output; for media messages MediaRef
// points at the encrypted bytes in a BlobStore. Seq is assigned by the
// store and increases within a conversation.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Sender         string      `json:"sender"`
	Kind           MessageKind `json:"kind"`
	Ciphertext     string      `json:"ciphertext,omitempty"`
	MediaRef       string      `json:"media_ref,omitempty"`
	MediaName      string      `json:"media_name,omitempty"`
	MediaType      string      `json:"media_type,omitempty"`
	IV             string      `json:"iv"`
	KeyEpoch       int         `json:"key_epoch"`
	Seq            int64       `json:"seq"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ProfileStore exposes the public keys users publish on their profiles.
type ProfileStore interface {
	// PublicKey returns the base64 SPKI key, or ErrPublicKeyNotFound.
	PublicKey(ctx context.Context, identity string) (string, error)
	PublishPublicKey(ctx context.Context, identity, publicKey string) error
}

// ConversationStore persists conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	// Conversation returns the record, or ErrConversationNotFound.
	Conversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// UpdateWrappedKeys merges entries into the conversation's map.
	UpdateWrappedKeys(ctx context.Context, id uuid.UUID, entries WrappedKeyMap) error
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageStore persists encrypted messages.
type MessageStore interface {
	// InsertMessage assigns msg.Seq and stores the message.
	InsertMessage(ctx context.Context, msg *Message) error
	// Messages returns all messages of a conversation ordered by Seq.
	Messages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	// MessagesSince returns messages with Seq greater than afterSeq.
	MessagesSince(ctx context.Context, conversationID uuid.UUID, afterSeq int64) ([]Message, error)
}

// BlobStore holds encrypted media bytes.
type BlobStore interface {
	PutBlob(ctx context.Context, ref string, data []byte) error
	// Blob returns the stored bytes, or ErrBlobNotFound.
	Blob(ctx context.Context, ref string) ([]byte, error)
}

// ChangeFeed delivers newly inserted messages of a conversation. The
// channel is closed when ctx is cancelled.
type ChangeFeed interface {
	Subscribe(ctx context.Context, conversationID uuid.UUID) (<-chan Message, error)
}

// Backend bundles the stores a conversation service needs.
type Backend struct {
	Profiles      ProfileStore
	Conversations ConversationStore
	Messages      MessageStore
	Blobs         BlobStore
}

// NewMediaRef returns a fresh blob reference for a conversation.
func NewMediaRef(conversationID uuid.UUID) string {
	return conversationID.String() + "/" + uuid.NewString()
}
