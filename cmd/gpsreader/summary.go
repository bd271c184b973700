package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gpsreader/internal/nmea"
	"gpsreader/internal/replay"
)

func newSummaryCmd() *cobra.Command {
	var (
		raw bool
		src sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "summary <capture>",
		Short: "Summarize a capture file: sentence counts, errors and duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			if path == "" {
				return errors.New("path is empty")
			}

			var recs []replay.Record
			if raw {
				b, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				recs = []replay.Record{{Data: b}}
			} else {
				var err error
				recs, err = replay.ReadFile(path)
				if err != nil {
					return err
				}
			}

			s := summarizeCapture(recs, src.framerConfig(), src.parser())
			printCaptureSummary(cmd.OutOrStdout(), path, s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Treat the file as plain NMEA text rather than a capture")
	cmd.Flags().BoolVar(&src.requireCRLF, "require-crlf", false, "Reject sentences terminated by a bare LF")
	cmd.Flags().BoolVar(&src.allowMissingChecksum, "allow-missing-checksum", false, "Accept sentences without *HH")
	cmd.Flags().IntVar(&src.centuryPivot, "century-pivot", nmea.DefaultCenturyPivot, "Two-digit years below this are 20yy")
	return cmd
}

type captureSummary struct {
	Segments      int
	Chunks        int
	Bytes         int
	MaxDuration   time.Duration
	Sentences     int
	TypeCounts    map[string]int
	FramingErrors map[string]int
	ParseErrors   map[string]int
	FirstFix      time.Time
	LastFix       time.Time
}

// summarizeCapture runs each capture segment through its own framer; a
// START line means the reader restarted, so a sentence never spans two.
func summarizeCapture(records []replay.Record, fc nmea.FramerConfig, p nmea.Parser) captureSummary {
	s := captureSummary{
		TypeCounts:    map[string]int{},
		FramingErrors: map[string]int{},
		ParseErrors:   map[string]int{},
	}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	segments := 0
	var seg bytes.Buffer
	flush := func() {
		if seg.Len() > 0 {
			s.decode(seg.Bytes(), fc, p)
			seg.Reset()
		}
	}

	for _, r := range records {
		if r.IsStart() {
			flush()
			segments++
			origin = r.At
			continue
		}
		s.Chunks++
		s.Bytes += len(r.Data)
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}
		seg.Write(r.Data)
	}
	flush()

	if segments == 0 && s.Chunks > 0 {
		segments = 1
	}
	s.Segments = segments
	return s
}

func (s *captureSummary) decode(data []byte, fc nmea.FramerConfig, p nmea.Parser) {
	fr := nmea.NewFramer(bytes.NewReader(data), fc)
	for {
		res, err := fr.Next()
		if err != nil {
			var fe *nmea.FramingError
			if !errors.As(err, &fe) {
				return
			}
			s.FramingErrors[fe.Kind.Error()]++
		}
		if res.Status == nmea.StatusEndOfStream {
			return
		}
		if res.Status != nmea.StatusMessage {
			continue
		}

		rec, err := p.Parse(res.Sentence)
		if err != nil {
			var pe *nmea.ParseError
			if errors.As(err, &pe) {
				s.ParseErrors[pe.Kind.Error()]++
			} else {
				s.ParseErrors[err.Error()]++
			}
			continue
		}
		s.Sentences++
		s.TypeCounts[string(rec.Type)]++
		if rec.Latitude != nil && rec.Valid != nil && *rec.Valid {
			if ts, ok := rec.Timestamp(); ok {
				if s.FirstFix.IsZero() {
					s.FirstFix = ts
				}
				s.LastFix = ts
			}
		}
	}
}

func printCaptureSummary(w io.Writer, path string, s captureSummary) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	if !s.FirstFix.IsZero() {
		fmt.Fprintf(w, "first_fix_utc: %s\n", s.FirstFix.Format(time.RFC3339Nano))
		fmt.Fprintf(w, "last_fix_utc: %s\n", s.LastFix.Format(time.RFC3339Nano))
	}
	printCounts(w, "type_counts", s.TypeCounts)
	printCounts(w, "framing_errors", s.FramingErrors)
	printCounts(w, "parse_errors", s.ParseErrors)
}

func printCounts(w io.Writer, title string, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, m[k])
	}
}
