// Package storage persists the durable half of the bot's state:
// session identity (which sessions exist and who owns them), operator
// accounts, per-session broadcast subscribers, and the append-only
// status-view log.
//
// The in-process half (live driver handles) lives in internal/session;
// on restart it is re-derived by replaying ListActiveSessions.
package storage
