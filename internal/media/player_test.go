package media

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rodrigo-weigert/meu-chapeu/internal/aead"
	"github.com/rodrigo-weigert/meu-chapeu/internal/voiceudp"
)

type fakeFrameSource struct {
	frames [][]byte
}

func (f *fakeFrameSource) Frames() <-chan []byte {
	ch := make(chan []byte, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch
}

type fakeSession struct {
	sender *voiceudp.Sender
	seq    uint16
	ts     uint32
	nonce  uint32
}

func (s *fakeSession) Ready(ctx context.Context) error               { return nil }
func (s *fakeSession) Sender() *voiceudp.Sender                      { return s.sender }
func (s *fakeSession) Counters() (uint16, uint32, uint32)            { return s.seq, s.ts, s.nonce }
func (s *fakeSession) AdvanceCounters(seq uint16, ts, nonce uint32)  { s.seq, s.ts, s.nonce = seq, ts, nonce }
func (s *fakeSession) MediaKeySource() voiceudp.MediaKeySource {
	return func() ([]byte, uint32, bool, error) { return nil, 0, false, nil }
}

func newFakeSession(t *testing.T) *fakeSession {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Close() })
	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	// Drain the server side so the sender never blocks on a full buffer.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	sender := voiceudp.New(client, aead.ModeAES256GCMRTPSize, bytes.Repeat([]byte{0x44}, 32), 0x9999)
	return &fakeSession{sender: sender}
}

func TestPlayerStreamsQueuedItemThenGoesIdle(t *testing.T) {
	sess := newFakeSession(t)
	queue := NewQueue()
	idleFired := make(chan struct{})
	player := NewPlayer(queue, sess, 100*time.Millisecond, func() { close(idleFired) })

	item := NewItem("song", "", "", 0, &fakeFrameSource{frames: [][]byte{{1}, {2}}})
	close(item.DownloadDone)
	queue.Push(item)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		player.Run(ctx)
		close(done)
	}()

	select {
	case <-idleFired:
	case <-time.After(2 * time.Second):
		t.Fatal("idle callback never fired")
	}
	cancel()
	<-done

	if sess.seq == 0 {
		t.Fatal("expected counters to advance after streaming")
	}
}

func TestPlayerSkipsFailedDownload(t *testing.T) {
	sess := newFakeSession(t)
	queue := NewQueue()

	item := NewItem("broken", "", "", 0, &fakeFrameSource{frames: [][]byte{{1}}})
	item.DownloadDone <- errFakeDownload
	queue.Push(item)

	idleFired := make(chan struct{})
	player := NewPlayer(queue, sess, 50*time.Millisecond, func() { close(idleFired) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go player.Run(ctx)

	select {
	case <-idleFired:
	case <-time.After(2 * time.Second):
		t.Fatal("idle callback never fired")
	}
	if sess.seq != 0 {
		t.Fatal("counters must not advance for a skipped item")
	}
}

var errFakeDownload = &downloadError{"boom"}

type downloadError struct{ msg string }

func (e *downloadError) Error() string { return e.msg }
