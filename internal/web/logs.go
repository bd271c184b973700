package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultLogTail = 200
	maxLogTail     = 5000
)

// LogBuffer is a logrus hook that remembers the newest entries for
// /api/logs. It sees every entry whatever the logger's own output is.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []logLine
	next    int // slot the next entry goes into
	full    bool
	dropped uint64
}

type logLine struct {
	level logrus.Level
	text  string
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]logLine, maxLines)}
}

func (b *LogBuffer) Levels() []logrus.Level { return logrus.AllLevels }

// Fire renders e as "time LEVEL message k=v ..." with keys sorted.
func (b *LogBuffer) Fire(e *logrus.Entry) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", e.Time.UTC().Format(time.RFC3339), strings.ToUpper(e.Level.String()), e.Message)
	for _, k := range sortedKeys(e.Data) {
		fmt.Fprintf(&sb, " %s=%v", k, e.Data[k])
	}
	line := logLine{level: e.Level, text: sb.String()}

	b.mu.Lock()
	if b.full {
		b.dropped++
	}
	b.ring[b.next] = line
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
	return nil
}

// Snapshot returns, oldest first, the newest tail entries at level or more
// severe, and how many entries the ring has overwritten so far.
func (b *LogBuffer) Snapshot(tail int, level logrus.Level) (lines []string, dropped uint64) {
	if tail <= 0 {
		tail = defaultLogTail
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.ring)
	}
	// Walk backwards from the newest entry.
	for i := 1; i <= n && len(lines) < tail; i++ {
		l := b.ring[(b.next-i+len(b.ring))%len(b.ring)]
		if l.level <= level {
			lines = append(lines, l.text)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

type logsQuery struct {
	tail  int
	level logrus.Level
	text  bool
}

func parseLogsQuery(q url.Values) (logsQuery, error) {
	out := logsQuery{tail: defaultLogTail, level: logrus.TraceLevel}
	if s := strings.TrimSpace(q.Get("tail")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxLogTail {
			return out, errors.Errorf("tail must be an integer in [1,%d]", maxLogTail)
		}
		out.tail = v
	}
	if s := strings.TrimSpace(q.Get("level")); s != "" {
		lv, err := logrus.ParseLevel(s)
		if err != nil {
			return out, err
		}
		out.level = lv
	}
	out.text = strings.EqualFold(q.Get("format"), "text")
	return out, nil
}

// Handler serves /api/logs. Query: tail=N, level=warn, format=text.
func (b *LogBuffer) Handler() http.Handler {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		q, err := parseLogsQuery(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		lines, dropped := b.Snapshot(q.tail, q.level)
		if !q.text {
			if lines == nil {
				lines = []string{}
			}
			writeJSON(w, LogsResponse{
				NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
				Dropped: dropped,
				Lines:   lines,
			})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if dropped > 0 {
			_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
		}
		for _, line := range lines {
			_, _ = io.WriteString(w, line+"\n")
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(append(b, '\n'))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
