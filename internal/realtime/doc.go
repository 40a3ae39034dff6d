// Package realtime provides change notification for stores that cannot
// push, by polling for messages with a higher sequence number than the
// last one delivered.
package realtime
