package execbridge

import (
	"context"
	"io"
	"sync"
)

// stdinPump adapts a channel of inbound byte chunks (binary WS frames and
// stdin text frames, both forwarded verbatim per spec.md §4.4) into an
// io.Reader for remotecommand's Stdin. It signals onFirstRead exactly
// once, the moment the upstream executor begins pumping stdin — the
// closest observable proxy for "the exec attach succeeded", since a
// shell-not-found failure is returned by the executor before it ever
// reads stdin.
type stdinPump struct {
	ctx    context.Context
	chunks <-chan []byte

	buffer []byte

	onFirstRead func()
	once        sync.Once
}

func newStdinPump(ctx context.Context, chunks <-chan []byte, onFirstRead func()) *stdinPump {
	return &stdinPump{ctx: ctx, chunks: chunks, onFirstRead: onFirstRead}
}

func (p *stdinPump) Read(dst []byte) (int, error) {
	p.once.Do(func() {
		if p.onFirstRead != nil {
			p.onFirstRead()
		}
	})

	if len(p.buffer) > 0 {
		n := copy(dst, p.buffer)
		p.buffer = p.buffer[n:]
		return n, nil
	}

	select {
	case <-p.ctx.Done():
		return 0, io.EOF
	case chunk, ok := <-p.chunks:
		if !ok {
			return 0, io.EOF
		}
		n := copy(dst, chunk)
		if n < len(chunk) {
			p.buffer = chunk[n:]
		}
		return n, nil
	}
}
