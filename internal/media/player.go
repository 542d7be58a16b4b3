package media

import (
	"context"
	"log"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/metrics"
	"github.com/rodrigo-weigert/meu-chapeu/internal/voiceudp"
)

// Session is the slice of voicegateway.Client the player needs: stream
// playback readiness, the UDP sender, and the running RTP counters.
type Session interface {
	Ready(ctx context.Context) error
	Sender() *voiceudp.Sender
	Counters() (seq uint16, timestamp, nonce uint32)
	AdvanceCounters(seq uint16, timestamp, nonce uint32)
	MediaKeySource() voiceudp.MediaKeySource
}

// Player consumes a Queue serially for one VoiceSession (spec §4.7).
// Exactly one Item is ever playing at a time (spec §3 invariant).
type Player struct {
	queue       *Queue
	session     Session
	idleTimeout time.Duration
	onIdle      func()

	currentStop *voiceudp.StopFlag
}

// NewPlayer builds a Player bound to queue and session. onIdle is
// invoked once the idle timer fires with nothing queued or playing
// (spec §4.7 step 1 / §9: "idle timer should start only when the queue
// is empty and no item is currently playing").
func NewPlayer(queue *Queue, session Session, idleTimeout time.Duration, onIdle func()) *Player {
	return &Player{queue: queue, session: session, idleTimeout: idleTimeout, onIdle: onIdle}
}

// Skip stops the currently playing item, if any, without closing the
// UDP socket (spec §4.7 "Skip command").
func (p *Player) Skip() {
	if p.currentStop != nil {
		p.currentStop.Stop()
	}
}

// Run drives the queue until ctx is cancelled or the idle timer fires.
func (p *Player) Run(ctx context.Context) {
	for {
		item, ok := p.queue.Pop()
		if !ok {
			timer := time.NewTimer(p.idleTimeout)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-p.queue.Wait():
				timer.Stop()
				continue
			case <-timer.C:
				p.onIdle()
				return
			}
		}
		metrics.QueueDepth.Set(float64(p.queue.Len()))
		p.playItem(ctx, item)
	}
}

func (p *Player) playItem(ctx context.Context, item *Item) {
	if err := <-item.DownloadDone; err != nil {
		log.Printf("[media] item %s (%s) failed to download, skipping: %v", item.ID, item.Title, err)
		return
	}

	if err := p.session.Ready(ctx); err != nil {
		log.Printf("[media] item %s: playback readiness wait aborted: %v", item.ID, err)
		return
	}

	stop := &voiceudp.StopFlag{}
	p.currentStop = stop
	defer func() { p.currentStop = nil }()

	seq, ts, nonce := p.session.Counters()
	endSeq, endTS, endNonce, err := p.session.Sender().StreamItem(
		item.Source.Frames(), stop, seq, ts, nonce, p.session.MediaKeySource())
	if err != nil {
		log.Printf("[media] item %s: stream error: %v", item.ID, err)
	}
	p.session.AdvanceCounters(endSeq, endTS, endNonce)
}
