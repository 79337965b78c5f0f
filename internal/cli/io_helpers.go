package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// formatETA renders the remaining-time estimate, or a placeholder while the
// pace is still unknown.
func formatETA(framesLeft int, secondsPerFrame float64) string {
	if framesLeft <= 0 || secondsPerFrame <= 0 {
		return "--"
	}
	eta := time.Duration(float64(framesLeft)*secondsPerFrame) * time.Second
	if eta >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(eta.Hours()), int(eta.Minutes())%60)
	}
	if eta >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(eta.Minutes()), int(eta.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(eta.Seconds()))
}
