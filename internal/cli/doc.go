// Package cli holds the shared plumbing behind cleat's commands.
//
// It resolves which tool server a command targets (flags, then
// configuration), wires the authenticator and session client for it, and
// classifies connection failures into errors whose messages tell the user
// what to run next. Auth errors map to dedicated exit codes in cmd.
//
// The package also carries the small interactive pieces commands share: a
// progress spinner that silences itself in quiet mode and a yes/no
// confirmation prompt.
package cli
