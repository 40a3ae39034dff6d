// Package keyring manages the private key held by one messaging session.
//
// A Manager is passed explicitly to whatever needs key material instead of
// living in a package-level variable, so independent sessions (tests,
// several CLI invocations, several accounts) never share or overwrite each
// other's keys.
//
// The private key is never written to durable storage here. Durability is
// opt-in through the vault package.
package keyring
