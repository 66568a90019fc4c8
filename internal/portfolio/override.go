package portfolio

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultOverrideDir    = "/tmp/polybot_override"
	overrideMarker        = "approve"
	overridePollStep      = 500 * time.Millisecond
	defaultOverrideWindow = 10 * time.Second
)

// awaitManualOverride gives the operator a short window to push a trade
// through after a high-confidence AI rejection: touch the marker file to
// approve. Single-consumer; any ambiguity resolves to "skip", which is the
// safe default.
func awaitManualOverride(dir string, window time.Duration, market string) bool {
	marker := filepath.Join(dir, overrideMarker)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("⏳ Override dir unavailable, skipping trade")
		return false
	}
	// A stale marker from an earlier window must not approve this one.
	os.Remove(marker)

	log.Warn().
		Str("market", market).
		Str("command", "touch "+marker).
		Dur("window", window).
		Msg("⏳ AI rejected with high confidence - run the command to override")

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		time.Sleep(overridePollStep)
		if _, err := os.Stat(marker); err == nil {
			os.Remove(marker)
			log.Info().Str("market", market).Msg("✅ Manual override approved")
			return true
		}
	}

	log.Info().Str("market", market).Msg("⏳ Override window expired, skipping trade")
	return false
}
