package gps

import (
	"bytes"
	"strings"
	"sync"
)

// tailBuffer keeps the last maxLines lines in a ring. It also implements
// io.Writer so a child process's stderr can be attached directly; partial
// lines are held until their newline arrives.
type tailBuffer struct {
	mu           sync.Mutex
	maxLineBytes int
	ring         []string
	next         int
	full         bool
	partial      []byte
}

func newTailBuffer(maxLines int, maxLineBytes int) *tailBuffer {
	if maxLines < 0 {
		maxLines = 0
	}
	if maxLineBytes <= 0 {
		maxLineBytes = 16 * 1024
	}
	return &tailBuffer{maxLineBytes: maxLineBytes, ring: make([]string, maxLines)}
}

func (t *tailBuffer) add(line string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLocked(line)
}

func (t *tailBuffer) addLocked(line string) {
	if len(t.ring) == 0 {
		return
	}
	if len(line) > t.maxLineBytes {
		line = line[:t.maxLineBytes]
	}
	t.ring[t.next] = line
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			break
		}
		t.partial = append(t.partial, p[:i]...)
		t.addLocked(strings.TrimRight(string(t.partial), "\r"))
		t.partial = t.partial[:0]
		p = p[i+1:]
	}
	if len(t.partial)+len(p) <= t.maxLineBytes {
		t.partial = append(t.partial, p...)
	}
	return n, nil
}

// last returns the newest line, or "" when empty.
func (t *tailBuffer) last() string {
	lines := t.snapshot()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// snapshot returns the kept lines, oldest first.
func (t *tailBuffer) snapshot() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]string{}, t.ring[:t.next]...)
	}
	out := make([]string, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}
