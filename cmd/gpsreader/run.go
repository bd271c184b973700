package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gpsreader/internal/config"
	"gpsreader/internal/gps"
	"gpsreader/internal/nmea"
	"gpsreader/internal/udp"
	"gpsreader/internal/web"
)

func newRunCmd(lf *logFlags) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reader service with UDP forwarding and the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return errors.Wrap(err, "config load failed")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = lf.level
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = lf.format
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runService(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "./gpsreader.yaml", "Path to YAML config")
	return cmd
}

// runService blocks until ctx is done or the web server fails.
func runService(ctx context.Context, cfg config.Config, stderr io.Writer) error {
	log, err := newLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	log.AddHook(logs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := gps.New(gpsConfig(cfg.GPS), log)
	if err := svc.Start(ctx); err != nil {
		return errors.Wrap(err, "gps start failed")
	}
	defer svc.Close()

	status := web.NewStatus(svc)

	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			return errors.Wrap(err, "udp broadcaster init failed")
		}
		defer b.Close()

		fwd, err := udp.NewForwarder(b, cfg.UDP.Format, log)
		if err != nil {
			return err
		}
		id, updates := svc.Subscribe(256)
		defer svc.Unsubscribe(id)
		go fwd.Run(ctx, updates)

		status.SetUDP(b.Dest(), cfg.UDP.Format, fwd.Stats)
		log.WithFields(logrus.Fields{"dest": b.Dest(), "format": cfg.UDP.Format}).Info("udp forwarding enabled")
	}

	webErr := make(chan error, 1)
	if cfg.Web.Enable {
		h := web.Handler(status, logs, web.StreamHandler(svc, log))
		go func() {
			webErr <- web.Serve(ctx, cfg.Web.Listen, h)
		}()
		log.WithField("listen", cfg.Web.Listen).Info("web ui enabled")
	}

	log.Info("gpsreader starting")
	select {
	case <-ctx.Done():
		log.Info("gpsreader stopping")
		return nil
	case err := <-webErr:
		if err != nil {
			return errors.Wrap(err, "web server stopped")
		}
		return nil
	}
}

func gpsConfig(g config.GPSConfig) gps.Config {
	out := gps.Config{
		Enable:       g.Enable,
		Source:       g.Source,
		Driver:       g.Driver,
		Device:       g.Device,
		Baud:         g.Baud,
		DataBits:     g.DataBits,
		Parity:       g.Parity,
		StopBits:     g.StopBits,
		ReadTimeout:  g.ReadTimeout,
		PollInterval: g.PollInterval,
		TCPAddr:      g.TCPAddr,
		GPSDWatch:    g.GPSDWatch,
		Command:      g.Command.Path,
		CommandArgs:  g.Command.Args,
		CommandEnv:   g.Command.Env,
		ReplayPath:   g.Replay.Path,
		ReplaySpeed:  g.Replay.Speed,
		ReplayLoop:   g.Replay.Loop,
		Sim: gps.SimConfig{
			CenterLatDeg: g.Sim.CenterLatDeg,
			CenterLonDeg: g.Sim.CenterLonDeg,
			AltFeet:      g.Sim.AltFeet,
			GroundKt:     g.Sim.GroundKt,
			RadiusNm:     g.Sim.RadiusNm,
			Period:       g.Sim.Period,
			Interval:     g.Sim.Interval,
			Talker:       g.Sim.Talker,
			NoFix:        g.Sim.NoFix,
			ScriptPath:   g.Sim.Script,
		},
		Framing: nmea.FramerConfig{
			MaxSentenceLength: g.Framing.MaxSentenceLength,
			ReadSize:          g.Framing.ReadSize,
			RequireCRLF:       g.Framing.RequireCRLF,
		},
		Parser: nmea.Parser{
			AllowMissingChecksum: g.Parsing.AllowMissingChecksum,
			CenturyPivot:         g.Parsing.CenturyPivot,
		},
		StatsWindow: g.StatsWindow,
		RecentLines: g.RecentLines,
		StaleAfter:  g.StaleAfter,
	}
	if g.Capture.Enable {
		out.CapturePath = g.Capture.Path
	}
	return out
}
