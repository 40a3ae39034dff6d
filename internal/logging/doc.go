// Package logger provides leveled logging for tecza commands and the
// messaging core.
//
// # Verbosity Levels
//
// Logging behavior is controlled by two flags:
//
//   - --verbose: Shows info messages
//   - --debug: Shows all messages including debug details
//
// Warnings and errors are always written to stderr.
//
// # Log Methods
//
//	Logger.Infof()          // Shown with --verbose or --debug
//	Logger.Debugf()         // Shown only with --debug
//	Logger.Warnf()          // Always shown
//	Logger.Errorf()         // Always shown
//	Logger.ErrorfAndReturn() // Builds an error, logged only with --debug
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Resolved key for conversation %s", id)
//
// Core packages take a Logger by value in their constructors. Key material,
// passphrases and plaintexts are never passed to a Logger; fingerprints,
// conversation IDs and distribution methods are.
package logger
