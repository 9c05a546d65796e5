// Package lifecycle holds the broadcasts microservices use to coordinate
// shutdown, and the shared run statistics.
package lifecycle

import (
	"github.com/drblury/mics/internal/runtime/message"
)

// TickBroadcast is sent by the ticker once per interval. Tick starts at 1.
type TickBroadcast struct {
	message.BroadcastBase
	Tick int `json:"tick"`
}

// TerminatedBroadcast announces that Service has finished its work. The
// ticker sends it with its own name once its duration has elapsed.
type TerminatedBroadcast struct {
	message.BroadcastBase
	Service string `json:"service"`
}

// CrashedBroadcast announces that Service stopped because a handler failed.
type CrashedBroadcast struct {
	message.BroadcastBase
	Service string `json:"service"`
	Reason  string `json:"reason"`
}
