package execbridge

import (
	"context"
	"io"
	"testing"
)

func TestStdinPumpSignalsOnFirstReadOnly(t *testing.T) {
	chunks := make(chan []byte, 2)
	chunks <- []byte("abc")
	chunks <- []byte("def")
	close(chunks)

	calls := 0
	pump := newStdinPump(context.Background(), chunks, func() { calls++ })

	buf := make([]byte, 16)
	for {
		_, err := pump.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	if calls != 1 {
		t.Errorf("onFirstRead called %d times, want 1", calls)
	}
}

func TestStdinPumpSplitsChunkAcrossReads(t *testing.T) {
	chunks := make(chan []byte, 1)
	chunks <- []byte("hello world")

	pump := newStdinPump(context.Background(), chunks, nil)

	small := make([]byte, 5)
	n, err := pump.Read(small)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if string(small[:n]) != "hello" {
		t.Errorf("first Read = %q, want %q", small[:n], "hello")
	}

	n, err = pump.Read(small)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if string(small[:n]) != " worl" {
		t.Errorf("second Read = %q, want %q", small[:n], " worl")
	}
}

func TestStdinPumpReturnsEOFOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pump := newStdinPump(ctx, make(chan []byte), nil)

	buf := make([]byte, 8)
	_, err := pump.Read(buf)
	if err != io.EOF {
		t.Errorf("Read after ctx cancel = %v, want io.EOF", err)
	}
}
