// Package memory provides an in-process implementation of every store
// interface, including a push-based change feed. It backs tests and
// single-process demos; nothing survives the process.
package memory
