package nmea

import (
	"strconv"
	"strings"
)

// DefaultCenturyPivot resolves two-digit years: yy < pivot is 20yy, anything
// else is 19yy. NMEA 0183 dates carry no century, so a receiver reporting
// 2080 or later will be read as 1980+.
const DefaultCenturyPivot = 80

func invalid(kind ParseErrorKind, field, value string) error {
	return &ParseError{Kind: kind, Field: field, Value: value}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isDecimal accepts an optional sign, digits and at most one '.'. It keeps
// strconv from accepting forms like "NaN", "Inf" or "1e5".
func isDecimal(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// parseDecimal returns nil for an empty field.
func parseDecimal(field, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !isDecimal(s) {
		return nil, invalid(ErrInvalidNumeric, field, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalid(ErrInvalidNumeric, field, s)
	}
	return &v, nil
}

// parseInt returns nil for an empty field.
func parseInt(field, s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !isDigits(strings.TrimPrefix(s, "-")) {
		return nil, invalid(ErrInvalidNumeric, field, s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, invalid(ErrInvalidNumeric, field, s)
	}
	return &v, nil
}

// requireInt is parseInt for fields the sentence cannot omit.
func requireInt(field, s string) (int, error) {
	v, err := parseInt(field, s)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, invalid(ErrInvalidNumeric, field, s)
	}
	return *v, nil
}

// parseTime parses hhmmss[.sss]. Seconds up to 60 are accepted for leap
// seconds.
func parseTime(field, s string) (*TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) != 6 || !isDigits(whole) || (hasFrac && frac != "" && !isDigits(frac)) {
		return nil, invalid(ErrInvalidTime, field, s)
	}
	h, _ := strconv.Atoi(whole[0:2])
	m, _ := strconv.Atoi(whole[2:4])
	sec, _ := strconv.Atoi(whole[4:6])
	if h > 23 || m > 59 || sec > 60 {
		return nil, invalid(ErrInvalidTime, field, s)
	}

	ns := 0
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		ns, _ = strconv.Atoi(frac)
	}
	return &TimeOfDay{Hour: h, Minute: m, Second: sec, Nanosecond: ns}, nil
}

// parseDate parses ddmmyy, resolving the century with pivot.
func parseDate(field, s string, pivot int) (*Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) != 6 || !isDigits(s) {
		return nil, invalid(ErrInvalidDate, field, s)
	}
	d, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	yy, _ := strconv.Atoi(s[4:6])
	if d < 1 || d > 31 || m < 1 || m > 12 {
		return nil, invalid(ErrInvalidDate, field, s)
	}
	return &Date{Day: d, Month: m, Year: expandYear(yy, pivot)}, nil
}

func expandYear(yy, pivot int) int {
	if yy < pivot {
		return 2000 + yy
	}
	return 1900 + yy
}

// parseFlag validates a single-character flag against allowed. An empty
// field yields "".
func parseFlag(field, s, allowed string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if len(s) != 1 || !strings.Contains(allowed, s) {
		return "", invalid(ErrInvalidFlag, field, s)
	}
	return s, nil
}

const (
	statusFlags = "AV"
	// FAA mode indicator (NMEA 2.3+), C for caution (4.1).
	modeFlags = "ACDEFMNPRS"
)

type coordAxis struct {
	pos, neg  string
	maxDeg    float64
	degDigits int
}

var (
	latitudeAxis  = coordAxis{pos: "N", neg: "S", maxDeg: 90, degDigits: 2}
	longitudeAxis = coordAxis{pos: "E", neg: "W", maxDeg: 180, degDigits: 3}
)

// parseCoord parses ddmm.mmmm (latitude) or dddmm.mmmm (longitude) plus its
// hemisphere into signed decimal degrees. S and W are negative.
//
// Empty value and hemisphere mean the receiver reported no position.
func parseCoord(field, v, hemi string, axis coordAxis) (*float64, error) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(hemi)
	if hemi != "" && hemi != axis.pos && hemi != axis.neg {
		return nil, invalid(ErrInvalidHemisphere, field, hemi)
	}
	if v == "" {
		return nil, nil
	}
	if hemi == "" {
		return nil, invalid(ErrInvalidHemisphere, field, hemi)
	}

	// The last two digits before the decimal point are whole minutes.
	intPart, fracPart, _ := strings.Cut(v, ".")
	if len(intPart) < 3 || len(intPart) > axis.degDigits+2 || !isDigits(intPart) {
		return nil, invalid(ErrInvalidNumeric, field, v)
	}
	if fracPart != "" && !isDigits(fracPart) {
		return nil, invalid(ErrInvalidNumeric, field, v)
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return nil, invalid(ErrInvalidNumeric, field, v)
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins >= 60 {
		return nil, invalid(ErrInvalidNumeric, field, v)
	}

	dec := float64(deg) + mins/60.0
	if dec > axis.maxDeg {
		return nil, invalid(ErrInvalidNumeric, field, v)
	}
	if hemi == axis.neg {
		dec = -dec
	}
	return &dec, nil
}
