package protocol

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"pioemu/core"
)

// ErrStreamClosed is returned by Receive once the stream has ended.
var ErrStreamClosed = errors.New("snapshot stream closed")

// SnapshotReader decodes a snapshot stream read from port in the
// background. When the consumer falls behind the oldest snapshot is
// dropped.
type SnapshotReader struct {
	port   io.ReadCloser
	frames *FrameReader
	logger *slog.Logger

	snapshots chan Snapshot

	expectSeq uint8
	haveSeq   bool
	resyncs   int
	missed    atomic.Int64
	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewSnapshotReader starts reading port. logger may be nil.
func NewSnapshotReader(port io.ReadCloser, logger *slog.Logger) *SnapshotReader {
	r := &SnapshotReader{
		port:      port,
		frames:    NewFrameReader(),
		logger:    core.LoggerOrDiscard(logger),
		snapshots: make(chan Snapshot, 16),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// Snapshots returns the channel decoded snapshots arrive on. It is closed
// when the stream ends.
func (r *SnapshotReader) Snapshots() <-chan Snapshot { return r.snapshots }

// Receive waits up to timeout for the next snapshot.
func (r *SnapshotReader) Receive(timeout time.Duration) (Snapshot, error) {
	select {
	case s, ok := <-r.snapshots:
		if !ok {
			return Snapshot{}, ErrStreamClosed
		}
		return s, nil
	case <-time.After(timeout):
		return Snapshot{}, errors.Errorf("no snapshot within %v", timeout)
	}
}

// Missed returns the number of frames lost to sequence gaps, resyncs or a
// full queue.
func (r *SnapshotReader) Missed() int {
	return int(r.missed.Load())
}

// Close stops the reader and closes the port.
func (r *SnapshotReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopChan)
		if r.port != nil {
			err = r.port.Close()
		}
		<-r.doneChan
	})
	return err
}

func (r *SnapshotReader) readLoop() {
	defer close(r.doneChan)
	defer close(r.snapshots)

	buffer := make([]byte, 256)
	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		n, err := r.port.Read(buffer)
		for _, f := range r.frames.Feed(buffer[:n]) {
			r.dispatch(f)
		}
		if resyncs := r.frames.Resyncs(); resyncs != r.resyncs {
			r.missed.Add(int64(resyncs - r.resyncs))
			r.resyncs = resyncs
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-r.stopChan:
				return
			default:
			}
			r.logger.Warn("snapshot stream read failed", "error", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (r *SnapshotReader) dispatch(f Frame) {
	if r.haveSeq && f.Seq != r.expectSeq {
		r.missed.Add(int64((f.Seq - r.expectSeq) & MessageSeqMask))
	}
	r.expectSeq = (f.Seq + 1) & MessageSeqMask
	r.haveSeq = true

	var s Snapshot
	if err := s.UnmarshalBinary(f.Payload); err != nil {
		r.logger.Warn("bad snapshot frame", "seq", f.Seq, "error", err)
		r.missed.Add(1)
		return
	}

	select {
	case r.snapshots <- s:
	default:
		select {
		case <-r.snapshots:
			r.missed.Add(1)
		default:
		}
		r.snapshots <- s
	}
}
