// Package workflows provides high-level orchestration for tecza commands.
//
// Workflows coordinate the configs, keyring, vault, conversation and store
// packages to implement complete user-facing features. Each workflow holds
// a single command's logic, independent of CLI concerns like flag parsing,
// spinners and output formatting.
//
// # Environment
//
// Every command except config init runs against an Env, opened from the
// resolved Settings and the loaded Config:
//
//	env, err := workflows.OpenEnv(ctx, workflows.EnvOptions{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer env.Close()
//
// The Env owns the store backend, the change feed used by watch, the
// audit trail and the session's key manager. A CLI process is one
// session: the private key lives in memory only and is unlocked from the
// vault file on demand with Env.Unlock.
//
// # Available Workflows
//
//   - ConfigInit, ConfigShow: user configuration
//   - KeysGenerate, KeysShow: keypair generation and publication
//   - VaultExport, VaultImport: moving the private key between devices
//   - ConversationCreate, Send, SendFile, Read, Watch, Download: messaging
//   - Grant, Migrate: key distribution maintenance
//   - Log: audit trail queries
//
// # Error Handling
//
// Workflows return sentinel errors from internal/errors, wrapped with
// context. The CLI layer checks them with errors.Is:
//
//	if errors.Is(err, kerrors.ErrVaultNotFound) {
//	    // Point the user at `tecza keys generate`
//	}
package workflows
