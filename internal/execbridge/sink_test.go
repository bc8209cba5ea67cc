package execbridge

import (
	"errors"
	"testing"
)

func TestResizableSinkWriteForwardsBytes(t *testing.T) {
	var got []byte
	sink := NewResizableSink(func(p []byte) error {
		got = append(got, p...)
		return nil
	}, 80, 24)

	n, err := sink.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if string(got) != "hello" {
		t.Errorf("forwarded = %q, want %q", got, "hello")
	}
}

func TestResizableSinkWritePropagatesSendError(t *testing.T) {
	sink := NewResizableSink(func(p []byte) error {
		return errors.New("socket closed")
	}, 80, 24)

	if _, err := sink.Write([]byte("x")); err == nil {
		t.Fatal("expected error from Write when send fails")
	}
}

func TestResizableSinkInitialSize(t *testing.T) {
	sink := NewResizableSink(func([]byte) error { return nil }, 80, 24)

	size := sink.Next()
	if size == nil || size.Width != 80 || size.Height != 24 {
		t.Errorf("Next() = %+v, want {80, 24}", size)
	}
	if sink.Cols() != 80 || sink.Rows() != 24 {
		t.Errorf("Cols/Rows = %d/%d, want 80/24", sink.Cols(), sink.Rows())
	}
}

func TestResizableSinkResizeUpdatesDimensionsAndQueue(t *testing.T) {
	sink := NewResizableSink(func([]byte) error { return nil }, 80, 24)
	sink.Next() // drain initial size

	sink.Resize(120, 40)

	size := sink.Next()
	if size == nil || size.Width != 120 || size.Height != 40 {
		t.Errorf("Next() after resize = %+v, want {120, 40}", size)
	}
	if sink.Cols() != 120 || sink.Rows() != 40 {
		t.Errorf("Cols/Rows = %d/%d, want 120/40", sink.Cols(), sink.Rows())
	}
}

func TestResizableSinkResizeCoalescesBeforeNextRead(t *testing.T) {
	sink := NewResizableSink(func([]byte) error { return nil }, 80, 24)
	sink.Next() // drain initial size

	sink.Resize(100, 30)
	sink.Resize(120, 40) // should replace the pending 100x30, not queue both

	size := sink.Next()
	if size == nil || size.Width != 120 || size.Height != 40 {
		t.Errorf("Next() = %+v, want latest {120, 40}", size)
	}
}

func TestResizableSinkDoneEndsQueue(t *testing.T) {
	sink := NewResizableSink(func([]byte) error { return nil }, 80, 24)
	sink.Next() // drain initial size
	sink.Done()
	sink.Done() // idempotent

	if size := sink.Next(); size != nil {
		t.Errorf("Next() after Done() = %+v, want nil", size)
	}
}
