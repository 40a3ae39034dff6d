package conversation

// State is the key-resolution state of an open conversation.
type State int

const (
	StateUninitialized State = iota
	StateKeyResolving
	StateKeyReady
	StateKeyUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyResolving:
		return "key-resolving"
	case StateKeyReady:
		return "key-ready"
	case StateKeyUnavailable:
		return "key-unavailable"
	default:
		return "unknown"
	}
}

// UnreadablePlaceholder stands in for any message that cannot be decrypted.
const UnreadablePlaceholder = "[unable to decrypt message]"
