package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gpsreader/internal/gps"
	"gpsreader/internal/nmea"
	"gpsreader/internal/replay"
)

func newRecordCmd(lf *logFlags) *cobra.Command {
	var (
		src      sourceFlags
		out      string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture raw receiver bytes to a replayable file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			log, err := lf.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			rc, endpoint, err := gps.Open(ctx, src.gpsConfig())
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				_ = rc.Close()
			}()
			defer rc.Close()

			log.WithFields(logrus.Fields{"source": src.source, "endpoint": endpoint, "out": out}).Info("recording")
			n, err := recordCapture(ctx, rc, out, src.framerConfig(), log)
			log.WithField("sentences", n).Info("recording stopped")
			return err
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Capture file to write")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

// recordCapture writes r to a new capture file at path until end of stream
// or ctx is done. Failing to write the capture is always an error.
func recordCapture(ctx context.Context, r io.Reader, path string, fc nmea.FramerConfig, log logrus.FieldLogger) (n int, err error) {
	w, err := replay.CreateWriter(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close capture")
		}
	}()
	return recordStream(ctx, r, w, fc, time.Now, log)
}

// recordStream copies r into w chunk by chunk while framing it, so the
// operator sees how many sentences were captured. It returns at end of
// stream or when ctx is done. A read error after ctx is done is the
// source being closed, not a failure.
func recordStream(ctx context.Context, r io.Reader, w *replay.Writer, fc nmea.FramerConfig, now func() time.Time, log logrus.FieldLogger) (int, error) {
	tee := replay.TeeReader(r, w, now, func(err error) {
		log.WithError(err).Warn("capture write failed")
	})
	bc := &byteCounter{r: tee}
	fr := nmea.NewFramer(bc, fc)

	sentences := 0
	for ctx.Err() == nil {
		before := bc.n
		res, err := fr.Next()
		if err != nil {
			var fe *nmea.FramingError
			if !errors.As(err, &fe) {
				if ctx.Err() != nil {
					break
				}
				return sentences, err
			}
			log.WithError(err).Debug("framing error")
		}
		switch res.Status {
		case nmea.StatusEndOfStream:
			return sentences, flushCapture(w)
		case nmea.StatusMessage:
			sentences++
			if sentences%100 == 0 {
				log.WithField("sentences", sentences).Info("recording")
			}
		case nmea.StatusPending:
			if err == nil && bc.n == before {
				select {
				case <-ctx.Done():
				case <-time.After(50 * time.Millisecond):
				}
			}
		}
	}
	return sentences, flushCapture(w)
}

func flushCapture(w *replay.Writer) error {
	return errors.Wrap(w.Flush(), "write capture")
}
