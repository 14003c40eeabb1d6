package broker

import (
	"fmt"
	"strings"

	"github.com/dermesser/lbbroker/log"

	"golang.org/x/time/rate"
)

// Longest frame prefix written to the log.
const maxLoggedFrame = 32

// Formats a multi-frame message as "[len] content" per frame, content truncated and made printable.
func logFrames(msg [][]byte) string {
	var sb strings.Builder

	for i, frame := range msg {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if len(frame) > maxLoggedFrame {
			fmt.Fprintf(&sb, "[%03d] %s...", len(frame), log.Printable(frame[:maxLoggedFrame]))
		} else {
			fmt.Fprintf(&sb, "[%03d] %s", len(frame), log.Printable(frame))
		}
	}
	return sb.String()
}

// violationLog writes malformed messages to the log, but not more often than its limiter allows;
// one misbehaving peer should not be able to flood the log.
type violationLog struct {
	limiter    *rate.Limiter
	suppressed int
}

func newViolationLog(r rate.Limit, burst int) *violationLog {
	return &violationLog{limiter: rate.NewLimiter(r, burst)}
}

func (v *violationLog) report(err error, msg [][]byte) {
	if !log.IsLoggingEnabled(log.LOGLEVEL_WARNINGS) {
		return
	}
	if !v.limiter.Allow() {
		v.suppressed++
		return
	}

	if v.suppressed > 0 {
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("Dropped malformed message: %s: %s (%d more not logged)",
			err.Error(), logFrames(msg), v.suppressed))
		v.suppressed = 0
	} else {
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("Dropped malformed message: %s: %s", err.Error(), logFrames(msg)))
	}
}
