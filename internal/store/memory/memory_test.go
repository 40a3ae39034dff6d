package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
)

func newConversation(t *testing.T, s *Store, participants ...string) *store.Conversation {
	t.Helper()
	keys := make(store.WrappedKeyMap, len(participants))
	for _, p := range participants {
		keys[p] = store.KeyEntry{Method: secrets.DistributionRawExported, Value: "k-" + p}
	}
	conv := &store.Conversation{
		ID:           uuid.New(),
		Participants: participants,
		WrappedKeys:  keys,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.PublicKey(ctx, "alice"); !errors.Is(err, kerrors.ErrPublicKeyNotFound) {
		t.Errorf("expected ErrPublicKeyNotFound, got: %v", err)
	}
	if err := s.PublishPublicKey(ctx, "alice", "pk1"); err != nil {
		t.Fatalf("PublishPublicKey failed: %v", err)
	}
	if err := s.PublishPublicKey(ctx, "alice", "pk2"); err != nil {
		t.Fatalf("PublishPublicKey failed: %v", err)
	}
	got, err := s.PublicKey(ctx, "alice")
	if err != nil || got != "pk2" {
		t.Errorf("expected pk2, got %q (err %v)", got, err)
	}
}

func TestConversationRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := newConversation(t, s, "alice", "bob")

	conv.WrappedKeys["mallory"] = store.KeyEntry{Value: "x"}
	conv.Participants[0] = "mallory"

	got, err := s.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if _, ok := got.WrappedKeys["mallory"]; ok {
		t.Error("mutating the caller's map must not change the stored record")
	}
	if got.Participants[0] != "alice" {
		t.Error("mutating the caller's slice must not change the stored record")
	}

	if err := s.CreateConversation(ctx, got); err == nil {
		t.Error("expected duplicate conversation ID to be rejected")
	}
}

func TestConversationNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	if _, err := s.Conversation(ctx, id); !errors.Is(err, kerrors.ErrConversationNotFound) {
		t.Errorf("Conversation: expected ErrConversationNotFound, got: %v", err)
	}
	if err := s.UpdateWrappedKeys(ctx, id, nil); !errors.Is(err, kerrors.ErrConversationNotFound) {
		t.Errorf("UpdateWrappedKeys: expected ErrConversationNotFound, got: %v", err)
	}
	if err := s.TouchConversation(ctx, id, time.Now()); !errors.Is(err, kerrors.ErrConversationNotFound) {
		t.Errorf("TouchConversation: expected ErrConversationNotFound, got: %v", err)
	}
	if err := s.InsertMessage(ctx, &store.Message{ConversationID: id}); !errors.Is(err, kerrors.ErrConversationNotFound) {
		t.Errorf("InsertMessage: expected ErrConversationNotFound, got: %v", err)
	}
}

func TestUpdateWrappedKeysMergesAndAddsParticipants(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := newConversation(t, s, "alice", "bob")

	update := store.WrappedKeyMap{
		"bob":   {Method: secrets.DistributionWrappedByRSA, Value: "wrapped-bob"},
		"carol": {Method: secrets.DistributionWrappedByRSA, Value: "wrapped-carol"},
	}
	if err := s.UpdateWrappedKeys(ctx, conv.ID, update); err != nil {
		t.Fatalf("UpdateWrappedKeys failed: %v", err)
	}

	got, err := s.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if got.WrappedKeys["alice"].Value != "k-alice" {
		t.Error("entries not named in the update must be kept")
	}
	if got.WrappedKeys["bob"].Method != secrets.DistributionWrappedByRSA {
		t.Error("expected bob's entry to be replaced")
	}
	if !got.HasParticipant("carol") {
		t.Error("expected carol to be added as a participant")
	}
	if len(got.Participants) != 3 {
		t.Errorf("expected 3 participants, got %v", got.Participants)
	}
}

func TestTouchConversationOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := newConversation(t, s, "alice")

	later := time.Now().UTC().Add(time.Hour)
	if err := s.TouchConversation(ctx, conv.ID, later); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}
	if err := s.TouchConversation(ctx, conv.ID, later.Add(-time.Minute)); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}
	got, _ := s.Conversation(ctx, conv.ID)
	if !got.LastActivity.Equal(later) {
		t.Errorf("expected last activity %v, got %v", later, got.LastActivity)
	}
}

func TestMessagesSequence(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := newConversation(t, s, "alice", "bob")
	other := newConversation(t, s, "alice")

	for i := 0; i < 3; i++ {
		msg := &store.Message{ID: uuid.New(), ConversationID: conv.ID, Sender: "alice", Kind: store.KindText}
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if msg.Seq == 0 {
			t.Error("expected InsertMessage to assign a sequence number")
		}
		if msg.CreatedAt.IsZero() {
			t.Error("expected InsertMessage to set CreatedAt")
		}
	}
	if err := s.InsertMessage(ctx, &store.Message{ID: uuid.New(), ConversationID: other.ID}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	all, err := s.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Errorf("messages out of order: %d then %d", all[i-1].Seq, all[i].Seq)
		}
	}

	since, err := s.MessagesSince(ctx, conv.ID, all[0].Seq)
	if err != nil {
		t.Fatalf("MessagesSince failed: %v", err)
	}
	if len(since) != 2 || since[0].ID != all[1].ID {
		t.Errorf("expected the last two messages, got %d", len(since))
	}

	none, err := s.MessagesSince(ctx, conv.ID, all[2].Seq)
	if err != nil {
		t.Fatalf("MessagesSince failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no messages after the last sequence, got %d", len(none))
	}
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Blob(ctx, "missing"); !errors.Is(err, kerrors.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got: %v", err)
	}

	data := []byte{1, 2, 3}
	if err := s.PutBlob(ctx, "ref", data); err != nil {
		t.Fatalf("PutBlob failed: %v", err)
	}
	data[0] = 9

	got, err := s.Blob(ctx, "ref")
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}
	if got[0] != 1 || len(got) != 3 {
		t.Errorf("unexpected blob contents: %v", got)
	}

	if err := s.PutBlob(ctx, "empty", nil); err != nil {
		t.Fatalf("PutBlob failed: %v", err)
	}
	empty, err := s.Blob(ctx, "empty")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected an empty blob, got %v (err %v)", empty, err)
	}
}

func TestSubscribeDeliversNewMessages(t *testing.T) {
	s := New()
	conv := newConversation(t, s, "alice", "bob")
	other := newConversation(t, s, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.Subscribe(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second, err := s.Subscribe(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := s.InsertMessage(ctx, &store.Message{ID: uuid.New(), ConversationID: other.ID}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	msg := &store.Message{ID: uuid.New(), ConversationID: conv.ID, Sender: "bob"}
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	for i, ch := range []<-chan store.Message{feed, second} {
		select {
		case got := <-ch:
			if got.ID != msg.ID {
				t.Errorf("subscriber %d: expected message %s, got %s", i, msg.ID, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for message", i)
		}
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	s := New()
	conv := newConversation(t, s, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := s.Subscribe(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			t.Error("expected the channel to be closed without a message")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}

	// Inserting after the subscriber is gone must not block or panic.
	if err := s.InsertMessage(context.Background(), &store.Message{ID: uuid.New(), ConversationID: conv.ID}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.PublicKey(ctx, "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if _, err := s.Subscribe(ctx, uuid.New()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}
