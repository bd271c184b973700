package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"gpsreader/internal/gps"
	"gpsreader/internal/nmea"
)

const serviceName = "gpsreader"

// AboutResponse describes the binary and what its decoder understands.
type AboutResponse struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	BuildInfo

	Sentences         []string `json:"sentences"`
	Sources           []string `json:"sources"`
	MaxSentenceLength int      `json:"max_sentence_length"`
}

// BuildInfo is the module and VCS stamp the Go toolchain embeds.
type BuildInfo struct {
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

var readBuildInfo = sync.OnceValue(func() BuildInfo {
	var out BuildInfo
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath, out.Version = bi.Main.Path, bi.Main.Version
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	out.Commit = settings["vcs.revision"]
	out.Dirty = settings["vcs.modified"] == "true"
	out.BuildTime = settings["vcs.time"]
	return out
})

func AboutHandler() http.Handler {
	sentences := make([]string, 0, len(nmea.SupportedTypes))
	for _, t := range nmea.SupportedTypes {
		sentences = append(sentences, string(t))
	}
	sources := []string{gps.SourceSerial, gps.SourceTCP, gps.SourceCommand, gps.SourceReplay, gps.SourceSim}

	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, AboutResponse{
			Service:           serviceName,
			NowUTC:            time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion:         runtime.Version(),
			BuildInfo:         readBuildInfo(),
			Sentences:         sentences,
			Sources:           sources,
			MaxSentenceLength: nmea.DefaultMaxSentenceLength,
		})
	})
}
