package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gpsreader/internal/gps"
	"gpsreader/internal/nmea"
)

func newDumpCmd(lf *logFlags) *cobra.Command {
	var (
		src    sourceFlags
		file   string
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every decoded sentence from a device, file or capture",
		Long: "Print every decoded sentence. Records go to stdout; framing and parse\n" +
			"errors go to the log on stderr and the dump continues with the next sentence.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "text" {
				return errors.New("--format must be json or text")
			}
			log, err := lf.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var r io.ReadCloser
			switch {
			case file == "-":
				r = io.NopCloser(cmd.InOrStdin())
			case file != "":
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				r = f
			default:
				rc, _, err := gps.Open(ctx, src.gpsConfig())
				if err != nil {
					return err
				}
				r = rc
			}
			// Close unblocks a pending device read on cancel.
			go func() {
				<-ctx.Done()
				_ = r.Close()
			}()
			defer r.Close()

			d := dumper{
				framer: src.framerConfig(),
				parser: src.parser(),
				format: format,
				limit:  limit,
				out:    cmd.OutOrStdout(),
				log:    log,
				poll:   100 * time.Millisecond,
			}
			st, err := d.run(ctx, r)
			log.WithFields(logrus.Fields{
				"records":        st.records,
				"framing_errors": st.framingErrors,
				"parse_errors":   st.parseErrors,
			}).Info("dump finished")
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "Read raw NMEA from a file instead of --source (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or text")
	cmd.Flags().IntVar(&limit, "count", 0, "Stop after this many records (0 = unlimited)")
	return cmd
}

type dumper struct {
	framer nmea.FramerConfig
	parser nmea.Parser
	format string
	limit  int
	out    io.Writer
	log    logrus.FieldLogger
	poll   time.Duration
}

type dumpStats struct {
	records       int
	framingErrors int
	parseErrors   int
}

// run frames and parses r until end of stream, the record limit or ctx.
func (d dumper) run(ctx context.Context, r io.Reader) (dumpStats, error) {
	var st dumpStats
	bc := &byteCounter{r: r}
	fr := nmea.NewFramer(bc, d.framer)
	enc := json.NewEncoder(d.out)

	for ctx.Err() == nil {
		before := bc.n
		res, err := fr.Next()
		if err != nil {
			var fe *nmea.FramingError
			if !errors.As(err, &fe) {
				return st, err
			}
			st.framingErrors++
			d.log.WithError(err).WithField("dropped", fe.Dropped).Warn("framing error")
		}

		switch res.Status {
		case nmea.StatusEndOfStream:
			return st, nil
		case nmea.StatusPending:
			if err == nil && bc.n == before {
				select {
				case <-ctx.Done():
				case <-time.After(d.poll):
				}
			}
			continue
		}

		line := strings.TrimRight(string(res.Sentence), "\r\n")
		rec, err := d.parser.Parse(res.Sentence)
		if err != nil {
			st.parseErrors++
			d.log.WithError(err).WithField("sentence", line).Warn("sentence rejected")
			continue
		}

		st.records++
		if d.format == "text" {
			fmt.Fprintln(d.out, formatRecord(rec))
		} else if err := enc.Encode(rec); err != nil {
			return st, err
		}
		if d.limit > 0 && st.records >= d.limit {
			return st, nil
		}
	}
	return st, nil
}

// formatRecord renders the fields a person usually wants from each type.
func formatRecord(rec nmea.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s", rec.Talker, rec.Type)
	if rec.Time != nil {
		fmt.Fprintf(&b, " time=%s", rec.Time)
	}
	if rec.Date != nil {
		fmt.Fprintf(&b, " date=%s", rec.Date)
	}
	if rec.Valid != nil {
		fmt.Fprintf(&b, " valid=%t", *rec.Valid)
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		fmt.Fprintf(&b, " pos=%.6f,%.6f", *rec.Latitude, *rec.Longitude)
	}
	if rec.SpeedKnots != nil {
		fmt.Fprintf(&b, " speed_kt=%.1f", *rec.SpeedKnots)
	}
	if rec.CourseDeg != nil {
		fmt.Fprintf(&b, " course=%.1f", *rec.CourseDeg)
	}
	switch {
	case rec.GGA != nil:
		if rec.GGA.Quality != nil {
			fmt.Fprintf(&b, " quality=%d", *rec.GGA.Quality)
		}
		if rec.GGA.Satellites != nil {
			fmt.Fprintf(&b, " sats=%d", *rec.GGA.Satellites)
		}
		if rec.GGA.AltitudeM != nil {
			fmt.Fprintf(&b, " alt_m=%.1f", *rec.GGA.AltitudeM)
		}
	case rec.TXT != nil:
		fmt.Fprintf(&b, " text=%q", rec.TXT.Text)
	}
	return b.String()
}
