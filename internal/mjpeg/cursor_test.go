package mjpeg

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestCursorMarkReset(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte("abcdefgh")))

	c.Mark(8)
	first, err := c.ReadFull(3)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(first) != "abc" {
		t.Fatalf("ReadFull = %q, want %q", first, "abc")
	}
	if got := c.Offset(); got != 3 {
		t.Fatalf("Offset = %d, want 3", got)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := c.Offset(); got != 0 {
		t.Fatalf("Offset after reset = %d, want 0", got)
	}

	// Replay crosses into unread source bytes.
	again, err := c.ReadFull(5)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(again) != "abcde" {
		t.Fatalf("ReadFull after reset = %q, want %q", again, "abcde")
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := c.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	b, err := c.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != 'c' {
		t.Fatalf("ReadByte = %q, want 'c'", b)
	}
}

func TestCursorMarkKeepsReplayTail(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte("0123456789")))

	c.Mark(10)
	if _, err := c.ReadFull(6); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := c.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	// "2345" is still buffered; a new mark must not lose it.
	c.Mark(10)
	got, err := c.ReadFull(8)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(got) != "23456789" {
		t.Fatalf("ReadFull = %q, want %q", got, "23456789")
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := c.Offset(); got != 2 {
		t.Fatalf("Offset = %d, want 2", got)
	}
}

func TestCursorMarkExpires(t *testing.T) {
	c := NewCursor(bytes.NewReader(bytes.Repeat([]byte{'x'}, 32)))

	c.Mark(4)
	if _, err := c.ReadFull(5); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrMarkExpired) {
		t.Fatalf("Reset past window = %v, want ErrMarkExpired", err)
	}

	fresh := NewCursor(bytes.NewReader(nil))
	if err := fresh.Reset(); !errors.Is(err, ErrMarkExpired) {
		t.Fatalf("Reset without mark = %v, want ErrMarkExpired", err)
	}
}

func TestCursorEndOfStream(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *Cursor) error
		want error
	}{
		{
			name: "read byte at end",
			run: func(c *Cursor) error {
				_, err := c.ReadByte()
				return err
			},
			want: io.EOF,
		},
		{
			name: "short read",
			run: func(c *Cursor) error {
				if _, err := c.ReadByte(); err != nil {
					return err
				}
				_, err := c.ReadFull(4)
				return err
			},
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "unmarked skip past end",
			run: func(c *Cursor) error {
				return c.Skip(10)
			},
			want: io.ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []byte{}
			if tt.name != "read byte at end" {
				src = []byte("ab")
			}
			c := NewCursor(bytes.NewReader(src))
			if err := tt.run(c); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
