package chat

import (
	"strings"
	"time"
)

// LegacyMarker wraps user lines in the legacy flat-text transcript format.
const LegacyMarker = "*"

// ParseLegacy reconstructs turns from a legacy flat-text transcript. A line
// wrapped in LegacyMarker is a user turn; every other non-blank line belongs
// to the assistant turn that follows the last user line. Assistant text that
// appears before any user line is kept as its own turn. All turns are stamped
// with ts.
//
// The format does not round-trip: consecutive assistant turns collapse into
// one.
func ParseLegacy(content string, ts time.Time) []Turn {
	var (
		turns   []Turn
		pending strings.Builder
	)

	flush := func() {
		text := strings.TrimSpace(pending.String())
		if text != "" {
			turns = append(turns, AssistantTurn(text, ts))
		}
		pending.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if isUserLine(line) {
			flush()
			body := strings.TrimSuffix(strings.TrimPrefix(line, LegacyMarker), LegacyMarker)
			turns = append(turns, UserTurn(body, ts))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		pending.WriteString(line)
		pending.WriteByte('\n')
	}
	flush()

	return turns
}

// isUserLine reports whether line starts and ends with the marker. A lone
// marker counts and yields an empty user turn.
func isUserLine(line string) bool {
	return strings.HasPrefix(line, LegacyMarker) && strings.HasSuffix(line, LegacyMarker)
}
