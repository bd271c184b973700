package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// logFlags are persistent on the root command. run falls back to the
// config file's log section for any flag not given.
type logFlags struct {
	level  string
	format string
}

func (f *logFlags) logger(out io.Writer) (*logrus.Logger, error) {
	return newLogger(f.level, f.format, out)
}

func newRootCmd() *cobra.Command {
	lf := &logFlags{}
	root := &cobra.Command{
		Use:           "gpsreader",
		Short:         "Read, decode and forward NMEA 0183 data from a GPS receiver",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&lf.level, "log-level", "info", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&lf.format, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newRunCmd(lf),
		newDumpCmd(lf),
		newSummaryCmd(),
		newRecordCmd(lf),
	)
	return root
}
