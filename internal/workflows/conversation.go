package workflows

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/asterixix/tecza/internal/conversation"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
	"github.com/asterixix/tecza/internal/utils"
)

const defaultMediaType = "application/octet-stream"

// ConversationInfo summarises an opened conversation.
type ConversationInfo struct {
	ID           uuid.UUID
	Participants []string
	State        conversation.State
	Method       secrets.Distribution

	// Err explains why the key is unavailable.
	Err error

	// Counts holds how many participants got each distribution method.
	Counts map[secrets.Distribution]int
}

func describe(sess *conversation.Session) *ConversationInfo {
	info := &ConversationInfo{
		ID:           sess.ID(),
		Participants: sess.Participants(),
		State:        sess.State(),
		Method:       sess.Method(),
		Err:          sess.Err(),
		Counts:       make(map[secrets.Distribution]int),
	}
	for _, p := range info.Participants {
		if entry, ok := sess.Entry(p); ok {
			method := entry.Method
			if method == "" {
				method = secrets.DistributionWrappedByRSA
			}
			info.Counts[method]++
		}
	}
	return info
}

func validateIdentities(identities ...string) error {
	for _, identity := range identities {
		if !utils.IsValidIdentity(strings.TrimSpace(identity)) {
			return fmt.Errorf("%w: identity %q", kerrors.ErrInvalidID, identity)
		}
	}
	return nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidID, s)
	}
	return id, nil
}

// unlockIfAvailable unlocks the vault when one exists. Conversations with
// raw-exported keys stay usable without one.
func (e *Env) unlockIfAvailable() error {
	err := e.Unlock()
	if errors.Is(err, kerrors.ErrVaultNotFound) {
		e.Log.Debugf("No vault found, continuing without a private key: %v", err)
		return nil
	}
	return err
}

// openSession unlocks the key if possible and opens the conversation.
func openSession(ctx context.Context, env *Env, id string) (*conversation.Service, *conversation.Session, error) {
	convID, err := parseID(id)
	if err != nil {
		return nil, nil, err
	}
	if err := env.unlockIfAvailable(); err != nil {
		return nil, nil, err
	}

	svc := env.Service()
	sess, err := svc.Open(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	return svc, sess, nil
}

// openReadySession is openSession for commands that need the key.
func openReadySession(ctx context.Context, env *Env, id string) (*conversation.Service, *conversation.Session, error) {
	svc, sess, err := openSession(ctx, env, id)
	if err != nil {
		return nil, nil, err
	}
	if sess.State() != conversation.StateKeyReady {
		return nil, nil, sess.Err()
	}
	return svc, sess, nil
}

// ConversationCreate starts a conversation between the local identity and
// participants.
//
// Returns ErrNoParticipants if no other participant is named.
func ConversationCreate(ctx context.Context, env *Env, participants []string) (*ConversationInfo, error) {
	if err := validateIdentities(participants...); err != nil {
		return nil, err
	}
	if err := env.unlockIfAvailable(); err != nil {
		return nil, err
	}

	sess, err := env.Service().Create(ctx, participants)
	if err != nil {
		return nil, err
	}
	return describe(sess), nil
}

// ConversationSend encrypts and sends a text message.
func ConversationSend(ctx context.Context, env *Env, id, text string) (*store.Message, error) {
	_, sess, err := openReadySession(ctx, env, id)
	if err != nil {
		return nil, err
	}
	return sess.SendText(ctx, text)
}

// ConversationSendFile encrypts the file at path and sends it as a media
// message. The file name and its guessed MIME type travel in the clear.
func ConversationSendFile(ctx context.Context, env *Env, id, path string) (*store.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	_, sess, err := openReadySession(ctx, env, id)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	return sess.SendFile(ctx, name, mediaType, data)
}

// ReadResult contains a conversation's decrypted history.
type ReadResult struct {
	Info     *ConversationInfo
	Messages []conversation.DecryptedMessage
}

// ConversationRead returns the history of a conversation. Messages that
// cannot be decrypted carry the placeholder text. When the key itself is
// unavailable every message does, and Info.Err says why.
func ConversationRead(ctx context.Context, env *Env, id string, limit int) (*ReadResult, error) {
	_, sess, err := openSession(ctx, env, id)
	if err != nil {
		return nil, err
	}

	messages, err := sess.History(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return &ReadResult{Info: describe(sess), Messages: messages}, nil
}

// ConversationWatch delivers new messages of a conversation to fn until
// ctx is cancelled. Cancellation is not an error.
func ConversationWatch(ctx context.Context, env *Env, id string, fn func(conversation.DecryptedMessage)) (*ConversationInfo, error) {
	if env.Feed == nil {
		return nil, fmt.Errorf("%w: no change feed configured", kerrors.ErrInvalidConfig)
	}

	_, sess, err := openSession(ctx, env, id)
	if err != nil {
		return nil, err
	}
	info := describe(sess)
	if info.State != conversation.StateKeyReady {
		env.Log.Warnf("Watching %s without its key; messages will show as unreadable", info.ID)
	}

	err = sess.Watch(ctx, env.Feed, fn)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return info, nil
	}
	return info, err
}

// DownloadResult describes a decrypted media file written to disk.
type DownloadResult struct {
	Path      string
	Name      string
	MediaType string
	Size      int
}

// ConversationDownload decrypts the media of message messageID and writes
// it to output. An empty output uses the original file name in the
// current directory.
//
// Returns ErrMessageNotFound if the conversation has no such message.
func ConversationDownload(ctx context.Context, env *Env, id, messageID, output string) (*DownloadResult, error) {
	msgID, err := parseID(messageID)
	if err != nil {
		return nil, err
	}

	_, sess, err := openReadySession(ctx, env, id)
	if err != nil {
		return nil, err
	}

	msgs, err := env.Backend.Messages.Messages(ctx, sess.ID())
	if err != nil {
		return nil, err
	}

	var found *store.Message
	for i := range msgs {
		if msgs[i].ID == msgID {
			found = &msgs[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrMessageNotFound, msgID)
	}

	data, err := sess.DecryptMedia(ctx, *found)
	if err != nil {
		return nil, err
	}

	if output == "" {
		output = filepath.Base(found.MediaName)
		if output == "." || output == string(filepath.Separator) || output == "" {
			output = found.ID.String()
		}
	}
	if err := os.WriteFile(output, data, 0600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", output, err)
	}

	return &DownloadResult{
		Path:      output,
		Name:      found.MediaName,
		MediaType: found.MediaType,
		Size:      len(data),
	}, nil
}

// ConversationGrant gives identity a copy of the conversation key without
// rotating it. It returns the distribution method used.
func ConversationGrant(ctx context.Context, env *Env, id, identity string) (secrets.Distribution, error) {
	if err := validateIdentities(identity); err != nil {
		return "", err
	}
	svc, sess, err := openReadySession(ctx, env, id)
	if err != nil {
		return "", err
	}
	return svc.Grant(ctx, sess, identity)
}

// MigrateResult contains the outcome of migrate.
type MigrateResult struct {
	Migrated int
	Info     *ConversationInfo
}

// ConversationMigrate re-wraps raw entries for participants who have
// published public keys since the conversation was created.
func ConversationMigrate(ctx context.Context, env *Env, id string) (*MigrateResult, error) {
	svc, sess, err := openReadySession(ctx, env, id)
	if err != nil {
		return nil, err
	}

	migrated, err := svc.Migrate(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{Migrated: migrated, Info: describe(sess)}, nil
}
