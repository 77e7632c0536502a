package vpn

import (
	"bufio"
	"context"
	"io"
	"sync"
)

const maxLineLength = 1024 * 1024

// LineReader yields the lines of a process output stream one at a time.
// Unlike a bare bufio.Scanner loop, Next also returns when its context is
// done, so a silent process cannot block the caller forever.
//
// A single goroutine scans the stream and hands lines over an unbuffered
// channel, so at most one line is read ahead of the consumer.
type LineReader struct {
	lines chan string

	mu  sync.Mutex
	err error
}

// NewLineReader starts reading r. The reader finishes when r reaches EOF
// or fails. Callers must consume every line, with Next or Drain.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{
		lines: make(chan string),
	}
	go lr.scan(r)
	return lr
}

func (lr *LineReader) scan(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		lr.lines <- scanner.Text()
	}

	if err := scanner.Err(); err != nil {
		lr.mu.Lock()
		lr.err = err
		lr.mu.Unlock()
	}
	close(lr.lines)

	// After a failed scan the writer may still be running. Keep its pipe
	// from filling up until it goes away.
	io.Copy(io.Discard, r)
}

// Next blocks until the next line is available. It returns false once the
// stream is exhausted or ctx is done; use Err and ctx.Err to tell which.
func (lr *LineReader) Next(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-lr.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

// Drain passes every remaining line to handle until the stream ends.
func (lr *LineReader) Drain(handle func(string)) {
	for line := range lr.lines {
		if handle != nil {
			handle(line)
		}
	}
}

// Err returns the read error that ended the stream, if any. io.EOF is not
// reported.
func (lr *LineReader) Err() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.err
}
