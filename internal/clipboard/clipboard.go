// Package clipboard implements the Clipboard Replicator: a 500ms poll
// loop that detects local clipboard changes and broadcasts them, and
// the incoming path that applies remote changes with sequence-based
// conflict resolution.
package clipboard

import (
	"log/slog"
	"time"

	"github.com/konflikt/konflikt/internal/protocol"
)

// pollInterval throttles Poll's clipboard reads to once per 500ms
// regardless of how often the supervisor calls it.
const pollInterval = 500 * time.Millisecond

// Backend is the subset of inputbackend.Backend the replicator reads
// and writes through.
type Backend interface {
	GetClipboardText(selection string) (string, error)
	SetClipboardText(text, selection string) (bool, error)
}

// Broadcaster is the subset of transport behaviour the replicator
// needs: broadcasting an encoded clipboard_sync frame.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Replicator owns the clipboard poll loop and the incoming
// clipboard_sync dedup logic. Driven exclusively from the supervisor's
// main loop.
type Replicator struct {
	backend        Backend
	bc             Broadcaster
	log            *slog.Logger
	selfInstanceID string

	lastText     string
	lastSequence uint32
	lastCheckAt  time.Time
	outgoingSeq  uint32

	now func() time.Time
}

// New creates a replicator for the given local backend, identified by
// selfInstanceID, broadcasting through bc.
func New(backend Backend, bc Broadcaster, log *slog.Logger, selfInstanceID string) *Replicator {
	if log == nil {
		log = slog.Default()
	}
	return &Replicator{
		backend:        backend,
		bc:             bc,
		log:            log,
		selfInstanceID: selfInstanceID,
		now:            time.Now,
	}
}

// Poll reads the local clipboard, throttled to once per 500ms, and
// broadcasts a clipboard_sync if the content changed and is non-empty.
// Safe to call on every supervisor tick; no-ops between throttle
// windows.
func (r *Replicator) Poll() {
	now := r.now()
	if !r.lastCheckAt.IsZero() && now.Sub(r.lastCheckAt) < pollInterval {
		return
	}
	r.lastCheckAt = now

	text, err := r.backend.GetClipboardText("")
	if err != nil {
		r.log.Warn("clipboard: read failed", "error", err)
		return
	}
	if text == "" || text == r.lastText {
		return
	}
	r.lastText = text
	r.outgoingSeq++

	msg := protocol.NewClipboardSync(r.selfInstanceID, "text/plain", text, r.outgoingSeq, now.UnixMilli())
	data, err := protocol.Encode(msg)
	if err != nil {
		r.log.Error("clipboard: encode clipboard_sync failed", "error", err)
		return
	}
	r.bc.Broadcast(data)
}

// HandleIncoming applies a remote clipboard_sync. Messages from self or
// with a sequence at or below the last applied one are dropped.
//
// lastText is updated before the write-back so the next Poll observes
// the new text and short-circuits on equality, never re-publishing a
// value this replicator just received.
func (r *Replicator) HandleIncoming(msg protocol.ClipboardSync) {
	if msg.SourceInstanceID == r.selfInstanceID {
		return
	}
	if msg.Sequence <= r.lastSequence {
		return
	}
	r.lastSequence = msg.Sequence
	r.lastText = msg.Data

	if ok, err := r.backend.SetClipboardText(msg.Data, ""); err != nil {
		r.log.Warn("clipboard: write failed", "error", err)
	} else if !ok {
		r.log.Warn("clipboard: write reported failure", "source", msg.SourceInstanceID)
	}
}
