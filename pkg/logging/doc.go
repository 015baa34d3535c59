// Package logging provides a structured logging system for cleat with unified
// log handling and level filtering.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior across the CLI, the OAuth flows, and
// the MCP session layer.
//
// # Log Levels
//
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// # Usage
//
//	import "cleat/pkg/logging"
//
//	// Initialize with Info level logging to stderr
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	// Log messages
//	logging.Info("AuthFlow", "starting device authorization for %s", serverURL)
//	logging.Debug("OAuth", "discovered token endpoint %s", endpoint)
//	logging.Warn("TokenStore", "token file for %s is corrupt, ignoring", serverURL)
//	logging.Error("Session", err, "failed to connect to %s", serverName)
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **OAuth**: metadata discovery, client registration, token requests
//   - **AuthFlow**: browser and device authorization flows
//   - **TokenStore**: token persistence and the token directory watcher
//   - **Session**: MCP client connections and tool calls
//   - **CLI**: command execution and output
//
// # Audit Logging
//
// The package provides specialized audit logging for security-sensitive
// operations:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "token_exchange",
//	    Outcome:   "success",
//	    SessionID: logging.TruncateSessionID(sessionID),
//	    Target:    "https://mcp.example.com",
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix for easy
// filtering by log aggregation systems.
package logging
