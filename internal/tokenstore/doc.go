// Package tokenstore persists OAuth token sets on disk, one JSON file per
// tool server.
//
// Files live in a single directory (by default under the user config dir)
// named by a hash of the normalized server URL, so arbitrary URLs map to
// filesystem-safe names. The directory is created with 0700 and token files
// with 0600 permissions.
//
// The store is safe for concurrent use within one process. It does not lock
// files against other processes: two concurrent logins to the same server
// from different processes can race, with last-writer-wins semantics. Both
// writers hold a valid token, so the loser's token is merely discarded.
//
// Load never fails on absent or unreadable files: a missing token file means
// "not logged in", and a corrupt one is treated the same way after a warning,
// so a damaged store degrades to re-authentication instead of an error.
//
// Watcher reports changes to the store directory, used to live-refresh
// status displays when another process logs in or out.
package tokenstore
