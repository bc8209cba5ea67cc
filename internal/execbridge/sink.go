package execbridge

import (
	"sync"
	"sync/atomic"

	"k8s.io/client-go/tools/remotecommand"
)

// ResizableSink is the outbound byte sink for one exec session: an
// io.Writer for merged stdout/stderr bytes that also carries mutable TTY
// dimensions and a resize signal the upstream exec client reads via
// remotecommand.TerminalSizeQueue (spec.md §3 "ResizableSink").
type ResizableSink struct {
	send func([]byte) error

	cols atomic.Int32
	rows atomic.Int32

	sizeCh   chan remotecommand.TerminalSize
	closeMu  sync.Mutex
	closed   bool
}

// NewResizableSink builds a sink that writes outbound bytes via send and
// is pre-loaded with the initial TTY size.
func NewResizableSink(send func([]byte) error, cols, rows int) *ResizableSink {
	s := &ResizableSink{
		send:   send,
		sizeCh: make(chan remotecommand.TerminalSize, 1),
	}
	s.cols.Store(int32(cols))
	s.rows.Store(int32(rows))
	s.sizeCh <- remotecommand.TerminalSize{Width: uint16(cols), Height: uint16(rows)}
	return s
}

// Write implements io.Writer, forwarding bytes to the client as-is.
func (s *ResizableSink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Resize updates the sink's dimensions and wakes Next() with the new
// size. The last resize before Next() is read wins.
func (s *ResizableSink) Resize(cols, rows int) {
	s.cols.Store(int32(cols))
	s.rows.Store(int32(rows))

	size := remotecommand.TerminalSize{Width: uint16(cols), Height: uint16(rows)}
	select {
	case s.sizeCh <- size:
	default:
		// Drain the stale pending size, then enqueue the fresh one.
		select {
		case <-s.sizeCh:
		default:
		}
		select {
		case s.sizeCh <- size:
		default:
		}
	}
}

// Next implements remotecommand.TerminalSizeQueue.
func (s *ResizableSink) Next() *remotecommand.TerminalSize {
	size, ok := <-s.sizeCh
	if !ok {
		return nil
	}
	return &size
}

// Cols and Rows report the sink's current dimensions.
func (s *ResizableSink) Cols() int { return int(s.cols.Load()) }
func (s *ResizableSink) Rows() int { return int(s.rows.Load()) }

// Done closes the size queue, causing Next() to return nil and the
// upstream executor's resize watcher to exit. Safe to call more than once.
func (s *ResizableSink) Done() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.sizeCh)
}
