// Package media implements the per-guild FIFO playback queue and player
// loop (spec §4.7, component C8). Acquiring/downloading/transcoding
// media itself is out of scope (spec §1); FrameSource is the seam a
// caller plugs a real producer into.
package media

import (
	"time"

	"github.com/google/uuid"
)

// FrameDuration is the fixed Opus frame length every MediaFrame carries
// (spec §3: "MediaFrame: (bytes payload, duration_ms=20)").
const FrameDuration = 20 * time.Millisecond

// FrameSource is a lazily-materialised, finite, ordered sequence of
// Opus-encoded frames. The channel must be closed once exhausted.
type FrameSource interface {
	Frames() <-chan []byte
}

// Item is one queued piece of media (spec §3 MediaItem).
type Item struct {
	ID        string
	Title     string
	DurationS int
	Link      string
	Thumbnail string
	Source    FrameSource

	// DownloadDone is the one-shot download_done signal the player waits
	// on: a sent nil or a close means the download is ready, a sent error
	// means the download failed and the player logs and skips (spec §4.7
	// step 3). Until one of these happens the player stays blocked; a nil
	// channel blocks it for good.
	DownloadDone chan error
}

// NewItem constructs a queueable Item with a fresh correlation id
// (grounded on internal/loop/dispatcher.go's use of google/uuid for
// command ids).
func NewItem(title, link, thumbnail string, durationS int, source FrameSource) *Item {
	return &Item{
		ID:           uuid.NewString(),
		Title:        title,
		Link:         link,
		Thumbnail:    thumbnail,
		DurationS:    durationS,
		Source:       source,
		DownloadDone: make(chan error, 1),
	}
}
