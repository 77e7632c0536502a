package vpn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLineReader_Next(t *testing.T) {
	lr := NewLineReader(strings.NewReader("first\nsecond\r\n\nlast"))
	ctx := context.Background()

	var got []string
	for {
		line, ok := lr.Next(ctx)
		if !ok {
			break
		}
		got = append(got, line)
	}

	want := []string{"first", "second", "", "last"}
	if len(got) != len(want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	if err := lr.Err(); err != nil {
		t.Errorf("Err() = %v, want nil at EOF", err)
	}
}

func TestLineReader_NextStopsOnContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	lr := NewLineReader(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := lr.Next(ctx); ok {
		t.Fatal("Next() should not yield a line from a silent stream")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Next() returned after %v, want prompt return on context expiry", elapsed)
	}
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("pipe broke") }

func TestLineReader_Err(t *testing.T) {
	lr := NewLineReader(failingReader{})
	if _, ok := lr.Next(context.Background()); ok {
		t.Fatal("Next() should report end of stream")
	}
	if err := lr.Err(); err == nil || !strings.Contains(err.Error(), "pipe broke") {
		t.Errorf("Err() = %v, want the read error", err)
	}
}

func TestLineReader_Drain(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a\nb\nc\n"))

	first, _ := lr.Next(context.Background())
	if first != "a" {
		t.Fatalf("Next() = %q, want a", first)
	}

	var rest []string
	lr.Drain(func(line string) { rest = append(rest, line) })

	if strings.Join(rest, ",") != "b,c" {
		t.Errorf("Drain() saw %q, want [b c]", rest)
	}
}

func TestLineReader_ScanErrorKeepsReading(t *testing.T) {
	pr, pw := io.Pipe()
	lr := NewLineReader(pr)

	written := make(chan error, 1)
	go func() {
		defer pw.Close()
		if _, err := pw.Write([]byte(strings.Repeat("x", maxLineLength+1) + "\n")); err != nil {
			written <- err
			return
		}
		for i := 0; i < 100; i++ {
			if _, err := fmt.Fprintf(pw, "line %d\n", i); err != nil {
				written <- err
				return
			}
		}
		written <- nil
	}()

	lr.Drain(nil)
	if !errors.Is(lr.Err(), bufio.ErrTooLong) {
		t.Errorf("Err() = %v, want bufio.ErrTooLong", lr.Err())
	}

	select {
	case err := <-written:
		if err != nil {
			t.Errorf("writer failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked after the line was rejected")
	}
}
