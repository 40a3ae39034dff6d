// Package store defines the records and the small interfaces through which
// the messaging core talks to its backend: profiles with published public
// keys, conversations with their wrapped key maps, encrypted messages,
// encrypted media blobs, and a feed of newly inserted messages.
//
// Implementations live in the subpackages memory, sqlite and minioblob.
// Everything that crosses these interfaces is already encrypted, except
// public keys and the raw-export key entries documented on KeyEntry.
package store
