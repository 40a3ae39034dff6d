// Package conversation opens, creates and exchanges messages in end-to-end
// encrypted conversations.
//
// A Service acts for one local identity. It is built from a
// keyring.Manager and the store interfaces; nothing is global. Opening a
// conversation resolves the local participant's copy of the conversation
// key and yields a Session in one of these states:
//
//	StateUninitialized -> StateKeyResolving -> StateKeyReady
//	                                        -> StateKeyUnavailable
//
// Only a StateKeyReady session encrypts or decrypts. A StateKeyUnavailable
// session, like a single unreadable message, degrades to
// UnreadablePlaceholder instead of failing the conversation.
//
// # Key distribution
//
// Each participant's copy of the key is either wrapped with RSA-OAEP for
// their published public key, or raw-exported when a participant has no
// public key. Raw copies can be read by anyone with access to the
// conversation record; they are logged as warnings and counted in the
// audit trail. Existing entries are never re-wrapped implicitly: a
// participant who publishes a key later keeps a raw entry until someone
// holding the key runs Service.Migrate, and a participant without any
// entry stays in StateKeyUnavailable until someone runs Service.Grant.
package conversation
