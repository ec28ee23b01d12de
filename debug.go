package ember

import (
	"fmt"
	"os"
)

// debugEnabled toggles the extra checks and per-frame stderr diagnostics.
// Off by default; flip it with SetDebug before creating nodes. Deliberately
// a single switch rather than a configuration system: either you are
// stepping through frames or you are shipping.
var debugEnabled bool

// SetDebug enables or disables debug checks and per-frame stats logging.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// FrameStats holds per-frame counters accumulated by the painter: GPU draw
// calls issued, batches finished, and cached ranges spliced in place of a
// fresh traversal. Splices replacing large subtrees are the whole point; a
// frame with mostly splices and few draw calls is a healthy frame.
type FrameStats struct {
	DrawCalls    int
	Batches      int
	CacheSplices int
}

// debugFrameStats prints the frame's counters to stderr.
func debugFrameStats(frameID uint64, stats FrameStats) {
	_, _ = fmt.Fprintf(os.Stderr,
		"[ember] frame %d: draw calls: %d | batches: %d | cache splices: %d\n",
		frameID, stats.DrawCalls, stats.Batches, stats.CacheSplices)
}

// debugCheckDisposed panics with a descriptive message when a disposed node
// is used in a tree or render operation. Only called when debugEnabled; in
// release mode callers skip this entirely.
func debugCheckDisposed(n *Node, op string) {
	if n.disposed {
		panic(fmt.Sprintf("ember debug: %s on disposed node %q (ID was %d)", op, n.Name, n.ID))
	}
}

// debugCheckTreeDepth warns on stderr if tree depth exceeds the threshold.
// Deep trees still render correctly but defeat the render cache's purpose:
// every ancestor stamp check and state push costs a little, and at this
// depth the structure is usually accidental.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(n *Node) {
	depth := 0
	for p := n; p != nil; p = p.parentOrMaskee() {
		depth++
	}
	if depth > debugMaxTreeDepth {
		_, _ = fmt.Fprintf(os.Stderr, "[ember] warning: tree depth %d exceeds %d (node %q)\n",
			depth, debugMaxTreeDepth, n.Name)
	}
}
