package nmea

import (
	"errors"
	"strings"
)

// Parser converts one framed sentence into a Record. The zero value verifies
// checksums and uses DefaultCenturyPivot.
type Parser struct {
	// AllowMissingChecksum accepts sentences without a "*HH" suffix. A
	// checksum that is present is always verified.
	AllowMissingChecksum bool

	// CenturyPivot overrides DefaultCenturyPivot when > 0.
	CenturyPivot int
}

// DefaultParser is used by the package-level Parse.
var DefaultParser = Parser{}

// Parse parses raw with DefaultParser.
func Parse(raw []byte) (Record, error) {
	return DefaultParser.Parse(raw)
}

type sentenceParser struct {
	// counts lists the accepted numbers of data fields (excluding the tag).
	counts []int
	parse  func(p Parser, f []string, rec *Record) error
}

var sentenceParsers = map[SentenceType]sentenceParser{
	TypeRMC: {counts: []int{11, 12, 13}, parse: parseRMC},
	TypeGGA: {counts: []int{14}, parse: parseGGA},
	TypeGLL: {counts: []int{6, 7}, parse: parseGLL},
	TypeVTG: {counts: []int{8, 9}, parse: parseVTG},
	TypeGSA: {counts: []int{17, 18}, parse: parseGSA},
	TypeGSV: {counts: []int{3, 4, 7, 8, 11, 12, 15, 16, 19, 20}, parse: parseGSV},
	TypeZDA: {counts: []int{6}, parse: parseZDA},
	TypeTXT: {counts: []int{4}, parse: parseTXT},
}

// Parse validates and decodes one sentence. raw must start with '$'; a
// trailing CR/LF is optional.
func (p Parser) Parse(raw []byte) (Record, error) {
	line := strings.TrimRight(string(raw), "\r\n")
	if !strings.HasPrefix(line, "$") {
		return Record{}, &ParseError{Kind: ErrMalformedSentence, Value: line, Err: errors.New("missing '$'")}
	}
	if len(line) == 1 {
		return Record{}, &ParseError{Kind: ErrMalformedSentence, Err: errors.New("empty sentence")}
	}

	payload := line[1:]
	if star := strings.LastIndexByte(payload, '*'); star >= 0 {
		ck := payload[star+1:]
		payload = payload[:star]
		want, ok := decodeChecksum(ck)
		if !ok {
			return Record{}, &ParseError{Kind: ErrChecksumMismatch, Value: ck}
		}
		if got := Checksum(payload); got != want {
			return Record{}, &ParseError{Kind: ErrChecksumMismatch, Expected: int(want), Actual: int(got)}
		}
	} else if !p.AllowMissingChecksum {
		return Record{}, &ParseError{Kind: ErrMissingChecksum}
	}

	parts := strings.Split(payload, ",")
	tag := parts[0]
	if !isTag(tag) {
		return Record{}, &ParseError{Kind: ErrMalformedSentence, Value: tag, Err: errors.New("bad sentence tag")}
	}
	// Proprietary sentences ("$P...") have no talker ID.
	if tag[0] == 'P' {
		return Record{}, &ParseError{Kind: ErrUnsupportedSentence, Tag: tag}
	}
	typ := SentenceType(tag[len(tag)-3:])
	sp, ok := sentenceParsers[typ]
	if !ok {
		return Record{}, &ParseError{Kind: ErrUnsupportedSentence, Tag: tag}
	}

	fields := parts[1:]
	if !containsInt(sp.counts, len(fields)) {
		return Record{}, &ParseError{
			Kind:     ErrFieldCountMismatch,
			Tag:      tag,
			Expected: nearestCount(sp.counts, len(fields)),
			Actual:   len(fields),
		}
	}

	rec := Record{Type: typ, Talker: tag[:len(tag)-3]}
	if err := sp.parse(p, fields, &rec); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) && pe.Tag == "" {
			pe.Tag = tag
		}
		return Record{}, err
	}
	return rec, nil
}

func (p Parser) pivot() int {
	if p.CenturyPivot > 0 {
		return p.CenturyPivot
	}
	return DefaultCenturyPivot
}

// isTag accepts talker+type tags: 3 to 6 upper-case letters or digits.
func isTag(s string) bool {
	if len(s) < 3 || len(s) > 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// nearestCount picks the accepted count closest to got, preferring the
// smaller one on ties.
func nearestCount(counts []int, got int) int {
	best := counts[0]
	for _, c := range counts[1:] {
		if abs(c-got) < abs(best-got) {
			best = c
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func boolPtr(v bool) *bool { return &v }

// RMC data fields (NMEA 0183 v2.3/v4.1):
//
//	0: time (hhmmss.sss)
//	1: status (A=active, V=void)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: speed over ground (knots)
//	7: course over ground (deg)
//	8: date (ddmmyy)
//	9: magnetic variation (deg)
//	10: E/W
//	11: mode indicator (2.3+)
//	12: navigational status (4.1)
func parseRMC(p Parser, f []string, rec *Record) error {
	var err error
	if rec.Time, err = parseTime("time", f[0]); err != nil {
		return err
	}
	status, err := parseFlag("status", f[1], statusFlags)
	if err != nil {
		return err
	}
	if status != "" {
		rec.Valid = boolPtr(status == "A")
	}
	if rec.Latitude, err = parseCoord("latitude", f[2], f[3], latitudeAxis); err != nil {
		return err
	}
	if rec.Longitude, err = parseCoord("longitude", f[4], f[5], longitudeAxis); err != nil {
		return err
	}
	if rec.SpeedKnots, err = parseDecimal("speed", f[6]); err != nil {
		return err
	}
	if rec.CourseDeg, err = parseDecimal("course", f[7]); err != nil {
		return err
	}
	if rec.Date, err = parseDate("date", f[8], p.pivot()); err != nil {
		return err
	}

	rmc := &RMC{Status: status}
	if rmc.MagVarDeg, err = parseSignedByHemisphere("mag_var", f[9], f[10], "E", "W"); err != nil {
		return err
	}
	if len(f) > 11 {
		if rmc.Mode, err = parseFlag("mode", f[11], modeFlags); err != nil {
			return err
		}
	}
	if len(f) > 12 {
		if rmc.NavStatus, err = parseFlag("nav_status", f[12], "SCUV"); err != nil {
			return err
		}
	}
	rec.RMC = rmc
	return nil
}

// GGA data fields:
//
//	0: time
//	1: latitude
//	2: N/S
//	3: longitude
//	4: E/W
//	5: fix quality (0=invalid)
//	6: satellites in use
//	7: HDOP
//	8: altitude (meters)
//	9: units (M)
//	10: geoid separation
//	11: units (M)
//	12: age of DGPS data (s)
//	13: DGPS station ID
func parseGGA(_ Parser, f []string, rec *Record) error {
	var err error
	if rec.Time, err = parseTime("time", f[0]); err != nil {
		return err
	}
	if rec.Latitude, err = parseCoord("latitude", f[1], f[2], latitudeAxis); err != nil {
		return err
	}
	if rec.Longitude, err = parseCoord("longitude", f[3], f[4], longitudeAxis); err != nil {
		return err
	}

	gga := &GGA{}
	q, err := parseInt("quality", f[5])
	if err != nil {
		return err
	}
	if q != nil {
		if *q < int(FixInvalid) || *q > int(FixSimulation) {
			return invalid(ErrInvalidFlag, "quality", f[5])
		}
		fq := FixQuality(*q)
		gga.Quality = &fq
		rec.Valid = boolPtr(fq != FixInvalid)
	}
	if gga.Satellites, err = parseInt("satellites", f[6]); err != nil {
		return err
	}
	if gga.HDOP, err = parseDecimal("hdop", f[7]); err != nil {
		return err
	}
	if gga.AltitudeM, err = parseDecimal("altitude", f[8]); err != nil {
		return err
	}
	if _, err = parseFlag("altitude_units", f[9], "M"); err != nil {
		return err
	}
	if gga.GeoidSepM, err = parseDecimal("geoid_sep", f[10]); err != nil {
		return err
	}
	if _, err = parseFlag("geoid_sep_units", f[11], "M"); err != nil {
		return err
	}
	if gga.DGPSAgeSec, err = parseDecimal("dgps_age", f[12]); err != nil {
		return err
	}
	gga.DGPSStationID = strings.TrimSpace(f[13])
	rec.GGA = gga
	return nil
}

// GLL data fields:
//
//	0: latitude
//	1: N/S
//	2: longitude
//	3: E/W
//	4: time
//	5: status (A/V)
//	6: mode indicator (2.3+)
func parseGLL(_ Parser, f []string, rec *Record) error {
	var err error
	if rec.Latitude, err = parseCoord("latitude", f[0], f[1], latitudeAxis); err != nil {
		return err
	}
	if rec.Longitude, err = parseCoord("longitude", f[2], f[3], longitudeAxis); err != nil {
		return err
	}
	if rec.Time, err = parseTime("time", f[4]); err != nil {
		return err
	}
	gll := &GLL{}
	if gll.Status, err = parseFlag("status", f[5], statusFlags); err != nil {
		return err
	}
	if gll.Status != "" {
		rec.Valid = boolPtr(gll.Status == "A")
	}
	if len(f) > 6 {
		if gll.Mode, err = parseFlag("mode", f[6], modeFlags); err != nil {
			return err
		}
	}
	rec.GLL = gll
	return nil
}

// VTG data fields:
//
//	0: true track (deg)
//	1: T
//	2: magnetic track (deg)
//	3: M
//	4: speed (knots)
//	5: N
//	6: speed (km/h)
//	7: K
//	8: mode indicator (2.3+)
func parseVTG(_ Parser, f []string, rec *Record) error {
	vtg := &VTG{}
	var err error
	if vtg.TrueTrackDeg, err = parseDecimal("true_track", f[0]); err != nil {
		return err
	}
	if vtg.MagneticTrackDeg, err = parseDecimal("magnetic_track", f[2]); err != nil {
		return err
	}
	if vtg.SpeedKnots, err = parseDecimal("speed_knots", f[4]); err != nil {
		return err
	}
	if vtg.SpeedKmh, err = parseDecimal("speed_kmh", f[6]); err != nil {
		return err
	}
	for i, unit := range []string{"T", "M", "N", "K"} {
		if _, err = parseFlag("unit", f[2*i+1], unit); err != nil {
			return err
		}
	}
	if len(f) > 8 {
		if vtg.Mode, err = parseFlag("mode", f[8], modeFlags); err != nil {
			return err
		}
	}
	rec.CourseDeg = vtg.TrueTrackDeg
	rec.SpeedKnots = vtg.SpeedKnots
	rec.VTG = vtg
	return nil
}

// GSA data fields:
//
//	0: selection mode (A/M)
//	1: fix type (1=none, 2=2D, 3=3D)
//	2-13: PRNs of satellites used
//	14: PDOP
//	15: HDOP
//	16: VDOP
//	17: GNSS system ID (4.1)
func parseGSA(_ Parser, f []string, rec *Record) error {
	gsa := &GSA{}
	var err error
	if gsa.SelectionMode, err = parseFlag("selection_mode", f[0], "AM"); err != nil {
		return err
	}
	ft, err := parseInt("fix_type", f[1])
	if err != nil {
		return err
	}
	if ft != nil {
		if *ft < int(FixTypeNone) || *ft > int(FixType3D) {
			return invalid(ErrInvalidFlag, "fix_type", f[1])
		}
		v := FixType(*ft)
		gsa.FixType = &v
		rec.Valid = boolPtr(v != FixTypeNone)
	}
	for i := 2; i <= 13; i++ {
		prn, err := parseInt("prn", f[i])
		if err != nil {
			return err
		}
		if prn != nil {
			gsa.SatellitePRNs = append(gsa.SatellitePRNs, *prn)
		}
	}
	if gsa.PDOP, err = parseDecimal("pdop", f[14]); err != nil {
		return err
	}
	if gsa.HDOP, err = parseDecimal("hdop", f[15]); err != nil {
		return err
	}
	if gsa.VDOP, err = parseDecimal("vdop", f[16]); err != nil {
		return err
	}
	if len(f) > 17 {
		if gsa.SystemID, err = parseInt("system_id", f[17]); err != nil {
			return err
		}
	}
	rec.GSA = gsa
	return nil
}

// GSV data fields:
//
//	0: total messages
//	1: message number
//	2: satellites in view
//	3+4i..6+4i: PRN, elevation, azimuth, SNR (up to four satellites)
//	last: signal ID (4.1) when the count leaves one over
func parseGSV(_ Parser, f []string, rec *Record) error {
	gsv := &GSV{}
	var err error
	if gsv.TotalMessages, err = requireInt("total_messages", f[0]); err != nil {
		return err
	}
	if gsv.MessageNumber, err = requireInt("message_number", f[1]); err != nil {
		return err
	}
	if gsv.SatellitesInView, err = parseInt("satellites_in_view", f[2]); err != nil {
		return err
	}
	rest := f[3:]
	if len(rest)%4 == 1 {
		gsv.SignalID = strings.TrimSpace(rest[len(rest)-1])
		rest = rest[:len(rest)-1]
	}
	for i := 0; i+4 <= len(rest); i += 4 {
		prn, err := parseInt("prn", rest[i])
		if err != nil {
			return err
		}
		if prn == nil {
			// Padding slot in the last message of a sequence.
			continue
		}
		sat := Satellite{PRN: *prn}
		if sat.ElevationDeg, err = parseInt("elevation", rest[i+1]); err != nil {
			return err
		}
		if sat.AzimuthDeg, err = parseInt("azimuth", rest[i+2]); err != nil {
			return err
		}
		if sat.SNR, err = parseInt("snr", rest[i+3]); err != nil {
			return err
		}
		gsv.Satellites = append(gsv.Satellites, sat)
	}
	rec.GSV = gsv
	return nil
}

// ZDA data fields:
//
//	0: time
//	1: day
//	2: month
//	3: year (four digits)
//	4: local zone hours
//	5: local zone minutes
func parseZDA(_ Parser, f []string, rec *Record) error {
	var err error
	if rec.Time, err = parseTime("time", f[0]); err != nil {
		return err
	}
	day, err := parseInt("day", f[1])
	if err != nil {
		return invalid(ErrInvalidDate, "day", f[1])
	}
	month, err := parseInt("month", f[2])
	if err != nil {
		return invalid(ErrInvalidDate, "month", f[2])
	}
	year, err := parseInt("year", f[3])
	if err != nil {
		return invalid(ErrInvalidDate, "year", f[3])
	}
	if day != nil && month != nil && year != nil {
		if *day < 1 || *day > 31 || *month < 1 || *month > 12 || *year < 0 {
			return invalid(ErrInvalidDate, "date", strings.Join(f[1:4], ","))
		}
		rec.Date = &Date{Day: *day, Month: *month, Year: *year}
	}

	zda := &ZDA{}
	if zda.ZoneHours, err = parseInt("zone_hours", f[4]); err != nil {
		return err
	}
	if zda.ZoneMinutes, err = parseInt("zone_minutes", f[5]); err != nil {
		return err
	}
	rec.ZDA = zda
	return nil
}

// TXT data fields:
//
//	0: total messages
//	1: message number
//	2: severity (00=error, 01=warning, 02=notice, 07=user)
//	3: text
func parseTXT(_ Parser, f []string, rec *Record) error {
	txt := &TXT{Text: f[3]}
	var err error
	if txt.TotalMessages, err = requireInt("total_messages", f[0]); err != nil {
		return err
	}
	if txt.MessageNumber, err = requireInt("message_number", f[1]); err != nil {
		return err
	}
	if txt.Severity, err = requireInt("severity", f[2]); err != nil {
		return err
	}
	rec.TXT = txt
	return nil
}

// parseSignedByHemisphere handles magnetic variation style fields: an
// unsigned decimal followed by a direction letter, neg making it negative.
func parseSignedByHemisphere(field, v, dir, pos, neg string) (*float64, error) {
	dir = strings.TrimSpace(dir)
	if dir != "" && dir != pos && dir != neg {
		return nil, invalid(ErrInvalidHemisphere, field, dir)
	}
	val, err := parseDecimal(field, v)
	if err != nil || val == nil {
		return nil, err
	}
	if dir == neg {
		*val = -*val
	}
	return val, nil
}
