package sim

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"gpsreader/internal/nmea"
)

const feetToMeters = 0.3048

// Receiver renders a Path as the NMEA output of a GPS receiver with a
// steady fix: one RMC, GGA, VTG and GSA per epoch.
type Receiver struct {
	Path Path
	// Talker defaults to "GP".
	Talker string
	// Satellites in use; defaults to 8.
	Satellites int
	HDOP       float64
	VDOP       float64
	PDOP       float64
	GeoidSepM  float64
	// NoFix reports status V and quality 0 with empty position fields for
	// every epoch. A Path can also report outages through State.NoFix.
	NoFix bool
}

// Sentences returns the framed sentences for the epoch at now.
func (r Receiver) Sentences(now time.Time) []byte {
	now = now.UTC()
	st := State{}
	if r.Path != nil {
		st = r.Path.StateAt(now)
	}
	talker := r.Talker
	if talker == "" {
		talker = "GP"
	}
	sats := r.Satellites
	if sats <= 0 {
		sats = 8
	}
	hdop := orDefault(r.HDOP, 0.9)
	vdop := orDefault(r.VDOP, 1.2)
	pdop := orDefault(r.PDOP, 1.5)

	hms := fmt.Sprintf("%02d%02d%02d.%02d", now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/1e7)
	dmy := fmt.Sprintf("%02d%02d%02d", now.Day(), int(now.Month()), now.Year()%100)
	lat, ns := formatLat(st.LatDeg)
	lon, ew := formatLon(st.LonDeg)
	noFix := r.NoFix || st.NoFix
	status, quality, fixType, mode := "A", 1, 3, "A"
	if noFix {
		status, quality, fixType, mode = "V", 0, 1, "N"
		lat, ns, lon, ew = "", "", "", ""
	}

	var out bytes.Buffer
	out.Write(nmea.Encode(fmt.Sprintf("%sRMC,%s,%s,%s,%s,%s,%s,%.1f,%.1f,%s,,,%s",
		talker, hms, status, lat, ns, lon, ew, st.GroundKt, st.TrackDeg, dmy, mode)))

	if noFix {
		out.Write(nmea.Encode(fmt.Sprintf("%sGGA,%s,,,,,0,00,,,M,,M,,", talker, hms)))
	} else {
		out.Write(nmea.Encode(fmt.Sprintf("%sGGA,%s,%s,%s,%s,%s,%d,%02d,%.1f,%.1f,M,%.1f,M,,",
			talker, hms, lat, ns, lon, ew, quality, sats, hdop, float64(st.AltFeet)*feetToMeters, r.GeoidSepM)))
	}

	out.Write(nmea.Encode(fmt.Sprintf("%sVTG,%.1f,T,,M,%.1f,N,%.1f,K,%s",
		talker, st.TrackDeg, st.GroundKt, st.GroundKt*1.852, mode)))

	prns := make([]string, 12)
	if !noFix {
		for i := 0; i < sats && i < len(prns); i++ {
			prns[i] = fmt.Sprintf("%02d", i*3+2)
		}
	}
	out.Write(nmea.Encode(fmt.Sprintf("%sGSA,A,%d,%s,%.1f,%.1f,%.1f",
		talker, fixType, strings.Join(prns, ","), pdop, hdop, vdop)))

	return out.Bytes()
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func formatLat(deg float64) (string, string) {
	hemi := "N"
	if deg < 0 {
		hemi, deg = "S", -deg
	}
	d, m := splitMinutes(deg)
	return fmt.Sprintf("%02d%07.4f", d, m), hemi
}

func formatLon(deg float64) (string, string) {
	hemi := "E"
	if deg < 0 {
		hemi, deg = "W", -deg
	}
	d, m := splitMinutes(deg)
	return fmt.Sprintf("%03d%07.4f", d, m), hemi
}

// splitMinutes rounds to the 4 decimal places written out, carrying into
// the degrees so minutes never print as 60.
func splitMinutes(deg float64) (int, float64) {
	d := math.Floor(deg)
	m := math.Round((deg-d)*60*1e4) / 1e4
	if m >= 60 {
		d++
		m -= 60
	}
	return int(d), m
}
