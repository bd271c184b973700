package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gpsreader/internal/gps"
)

type fakeGPS struct{ snap gps.Snapshot }

func (f fakeGPS) Snapshot() gps.Snapshot { return f.snap }

func TestAPIStatus(t *testing.T) {
	lat, lon := 48.1173, 11.5167
	st := NewStatus(fakeGPS{snap: gps.Snapshot{
		Enabled: true,
		Valid:   true,
		State:   "connected",
		Source:  "serial",
		LatDeg:  &lat,
		LonDeg:  &lon,
	}})
	st.SetUDP("127.0.0.1:10110", "nmea", func() (uint64, uint64) { return 7, 1 })

	ts := httptest.NewServer(Handler(st, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "gpsreader" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.GPS.State != "connected" || snap.GPS.LatDeg == nil || *snap.GPS.LatDeg != lat {
		t.Fatalf("gps=%+v", snap.GPS)
	}
	if snap.UDP == nil || snap.UDP.Dest != "127.0.0.1:10110" || snap.UDP.Sent != 7 || snap.UDP.Failed != 1 {
		t.Fatalf("udp=%+v", snap.UDP)
	}
}

func TestAPIStatus_NoUDPWhenUnset(t *testing.T) {
	snap := NewStatus(nil).Snapshot(time.Time{})
	if snap.UDP != nil {
		t.Fatalf("udp=%+v", snap.UDP)
	}
	if snap.GPS.Enabled {
		t.Fatalf("gps should be zero")
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(nil), nil, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestRootPage(t *testing.T) {
	st := NewStatus(fakeGPS{snap: gps.Snapshot{
		State:  "connected",
		LatDeg: ptr(48.1173),
		LonDeg: ptr(11.5167),
		Recent: []string{"$GPRMC,<x>*00"},
	}})
	ts := httptest.NewServer(Handler(st, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "state=connected") {
		t.Fatalf("body=%s", body)
	}
	if !strings.Contains(string(body), "position=48.117300,11.516700") {
		t.Fatalf("body=%s", body)
	}
	if !strings.Contains(string(body), "&lt;x&gt;") {
		t.Fatalf("recent lines not escaped: %s", body)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestAPIAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(nil), nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get about: %v", err)
	}
	defer resp.Body.Close()

	var about AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if about.Service != "gpsreader" || about.GoVersion == "" {
		t.Fatalf("about=%+v", about)
	}
	if len(about.Sources) != 5 || about.Sources[0] != "serial" {
		t.Fatalf("sources=%v", about.Sources)
	}
	if len(about.Sentences) != 8 || about.Sentences[0] != "RMC" || about.MaxSentenceLength != 128 {
		t.Fatalf("capabilities=%v max=%d", about.Sentences, about.MaxSentenceLength)
	}
}

func ptr(v float64) *float64 { return &v }
