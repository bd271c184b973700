package nmea

import (
	"fmt"
	"time"
)

// SentenceType is the three-letter sentence formatter, without talker ID.
type SentenceType string

const (
	TypeRMC SentenceType = "RMC"
	TypeGGA SentenceType = "GGA"
	TypeGLL SentenceType = "GLL"
	TypeVTG SentenceType = "VTG"
	TypeGSA SentenceType = "GSA"
	TypeGSV SentenceType = "GSV"
	TypeZDA SentenceType = "ZDA"
	TypeTXT SentenceType = "TXT"
)

// SupportedTypes lists every sentence type Parse understands.
var SupportedTypes = []SentenceType{TypeRMC, TypeGGA, TypeGLL, TypeVTG, TypeGSA, TypeGSV, TypeZDA, TypeTXT}

// Record is one parsed sentence.
//
// The common navigation fields are nil when the sentence type does not carry
// them or the receiver left them empty; a nil value is never the same as a
// reported zero. Exactly one of the per-type detail pointers is set.
type Record struct {
	Type   SentenceType `json:"type"`
	Talker string       `json:"talker"`

	Time       *TimeOfDay `json:"time,omitempty"`
	Date       *Date      `json:"date,omitempty"`
	Valid      *bool      `json:"valid,omitempty"`
	Latitude   *float64   `json:"lat_deg,omitempty"`
	Longitude  *float64   `json:"lon_deg,omitempty"`
	SpeedKnots *float64   `json:"speed_kt,omitempty"`
	CourseDeg  *float64   `json:"course_deg,omitempty"`

	RMC *RMC `json:"rmc,omitempty"`
	GGA *GGA `json:"gga,omitempty"`
	GLL *GLL `json:"gll,omitempty"`
	VTG *VTG `json:"vtg,omitempty"`
	GSA *GSA `json:"gsa,omitempty"`
	GSV *GSV `json:"gsv,omitempty"`
	ZDA *ZDA `json:"zda,omitempty"`
	TXT *TXT `json:"txt,omitempty"`
}

// Timestamp combines Date and Time. ok is false unless both are present.
func (r Record) Timestamp() (time.Time, bool) {
	if r.Date == nil || r.Time == nil {
		return time.Time{}, false
	}
	return time.Date(r.Date.Year, time.Month(r.Date.Month), r.Date.Day,
		r.Time.Hour, r.Time.Minute, r.Time.Second, r.Time.Nanosecond, time.UTC), true
}

// TimeOfDay is a UTC time of day. Second may be 60 during a leap second.
type TimeOfDay struct {
	Hour       int `json:"hour"`
	Minute     int `json:"minute"`
	Second     int `json:"second"`
	Nanosecond int `json:"nanosecond"`
}

func (t TimeOfDay) String() string {
	if t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Nanosecond/int(time.Millisecond))
}

type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (d Date) String() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, d.Month, d.Year)
}

// FixQuality is the GGA fix quality indicator.
type FixQuality int

const (
	FixInvalid FixQuality = iota
	FixGPS
	FixDGPS
	FixPPS
	FixRTK
	FixFloatRTK
	FixEstimated
	FixManual
	FixSimulation
)

// FixType is the GSA fix mode.
type FixType int

const (
	FixTypeNone FixType = 1
	FixType2D   FixType = 2
	FixType3D   FixType = 3
)

// RMC: recommended minimum specific GNSS data.
type RMC struct {
	Status    string   `json:"status"`
	MagVarDeg *float64 `json:"mag_var_deg,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	NavStatus string   `json:"nav_status,omitempty"`
}

// GGA: fix data.
type GGA struct {
	Quality       *FixQuality `json:"quality,omitempty"`
	Satellites    *int        `json:"satellites,omitempty"`
	HDOP          *float64    `json:"hdop,omitempty"`
	AltitudeM     *float64    `json:"altitude_m,omitempty"`
	GeoidSepM     *float64    `json:"geoid_sep_m,omitempty"`
	DGPSAgeSec    *float64    `json:"dgps_age_sec,omitempty"`
	DGPSStationID string      `json:"dgps_station_id,omitempty"`
}

// GLL: geographic position.
type GLL struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
}

// VTG: course over ground and ground speed.
type VTG struct {
	TrueTrackDeg     *float64 `json:"true_track_deg,omitempty"`
	MagneticTrackDeg *float64 `json:"magnetic_track_deg,omitempty"`
	SpeedKnots       *float64 `json:"speed_kt,omitempty"`
	SpeedKmh         *float64 `json:"speed_kmh,omitempty"`
	Mode             string   `json:"mode,omitempty"`
}

// GSA: DOP and active satellites.
type GSA struct {
	SelectionMode string   `json:"selection_mode"`
	FixType       *FixType `json:"fix_type,omitempty"`
	SatellitePRNs []int    `json:"satellite_prns,omitempty"`
	PDOP          *float64 `json:"pdop,omitempty"`
	HDOP          *float64 `json:"hdop,omitempty"`
	VDOP          *float64 `json:"vdop,omitempty"`
	SystemID      *int     `json:"system_id,omitempty"`
}

// GSV: satellites in view. One sentence carries up to four satellites.
type GSV struct {
	TotalMessages    int         `json:"total_messages"`
	MessageNumber    int         `json:"message_number"`
	SatellitesInView *int        `json:"satellites_in_view,omitempty"`
	Satellites       []Satellite `json:"satellites,omitempty"`
	SignalID         string      `json:"signal_id,omitempty"`
}

type Satellite struct {
	PRN          int  `json:"prn"`
	ElevationDeg *int `json:"elevation_deg,omitempty"`
	AzimuthDeg   *int `json:"azimuth_deg,omitempty"`
	SNR          *int `json:"snr,omitempty"`
}

// ZDA: time and date with local zone.
type ZDA struct {
	ZoneHours   *int `json:"zone_hours,omitempty"`
	ZoneMinutes *int `json:"zone_minutes,omitempty"`
}

// TXT: free-form text from the receiver.
type TXT struct {
	TotalMessages int    `json:"total_messages"`
	MessageNumber int    `json:"message_number"`
	Severity      int    `json:"severity"`
	Text          string `json:"text"`
}
