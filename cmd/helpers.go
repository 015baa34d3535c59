package cmd

import (
	"fmt"
	"os"
	"time"

	"cleat/internal/cli"
	"cleat/internal/config"
	"cleat/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/text"
)

// loadConfig initializes logging from the shared flags and loads the
// configuration, honoring --config and CLEAT_CONFIG_PATH. Diagnostics go to
// stderr so they never mix with command output.
func loadConfig(flags *cli.CommandFlags) (*config.Config, error) {
	level := logging.LevelError
	if flags.Debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
