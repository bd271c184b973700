package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"
)

// Handler routes the HTTP API. logs and stream may be nil.
func Handler(status *Status, logs *LogBuffer, stream http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/status", getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	}))
	mux.Handle("/api/about", AboutHandler())
	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	if stream != nil {
		mux.Handle("/api/stream", stream)
	}
	mux.Handle("/", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexPage.Execute(w, status.Snapshot(time.Now().UTC())); err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
		}
	}))
	return mux
}

// getOnly rejects everything but GET (and HEAD, which net/http answers
// from the GET handler).
func getOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

var indexPage = template.Must(template.New("index").Funcs(template.FuncMap{
	"deref": func(p *float64) float64 { return *p },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta http-equiv="refresh" content="2"><title>gpsreader</title></head>
<body>
<h1>gpsreader</h1>
<p>JSON: <a href="/api/status">/api/status</a>, live sentences: <code>/api/stream</code></p>
{{with .GPS}}<pre>state={{.State}}
source={{.Source}}
device={{.Device}}
valid={{.Valid}} stale={{.FixStale}}
{{if and .LatDeg .LonDeg}}position={{printf "%.6f,%.6f" (deref .LatDeg) (deref .LonDeg)}}
{{end}}{{if .GroundKt}}ground_kt={{printf "%.1f" (deref .GroundKt)}}
{{end}}{{with .Counters}}sentences={{.Sentences}} framing_errors={{.FramingErrors}} checksum_errors={{.ChecksumErrors}} parse_errors={{.ParseErrors}} unsupported={{.Unsupported}}
{{end}}{{if .LastError}}last_error={{.LastError}}
{{end}}</pre>
{{if .Recent}}<h2>Recent</h2>
<pre>{{range .Recent}}{{.}}
{{end}}</pre>{{end}}{{end}}
</body></html>
`))

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Websocket streams are hijacked and not tracked by Shutdown; their
	// handlers exit when the GPS service closes subscriptions.
	stop, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(stop)
	return ctx.Err()
}
