package nmea

import (
	"fmt"
	"strings"
)

// FramingErrorKind classifies a framing failure. Kinds are usable directly
// with errors.Is against a returned *FramingError.
type FramingErrorKind int

const (
	// ErrOversizedMessage: a sentence start was seen but no terminator arrived
	// within the maximum sentence length.
	ErrOversizedMessage FramingErrorKind = iota + 1
	// ErrTruncatedMessage: the stream ended in the middle of a sentence.
	ErrTruncatedMessage
	// ErrAbandonedMessage: a second '$' arrived before the first sentence was
	// terminated; the first one is dropped and framing restarts at the second.
	ErrAbandonedMessage
	// ErrBareLineFeed: strict CRLF mode saw a sentence ended by LF alone.
	ErrBareLineFeed
)

func (k FramingErrorKind) Error() string {
	switch k {
	case ErrOversizedMessage:
		return "oversized message"
	case ErrTruncatedMessage:
		return "truncated message"
	case ErrAbandonedMessage:
		return "abandoned message"
	case ErrBareLineFeed:
		return "bare line feed terminator"
	default:
		return fmt.Sprintf("framing error %d", int(k))
	}
}

// FramingError reports a span the framer discarded to regain sync.
type FramingError struct {
	Kind    FramingErrorKind
	Dropped int // bytes discarded
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("nmea: %s (dropped %d bytes)", e.Kind.Error(), e.Dropped)
}

func (e *FramingError) Unwrap() error { return e.Kind }

// ParseErrorKind classifies why a sentence was rejected.
type ParseErrorKind int

const (
	ErrChecksumMismatch ParseErrorKind = iota + 1
	ErrMissingChecksum
	ErrMalformedSentence
	ErrUnsupportedSentence
	ErrFieldCountMismatch
	ErrInvalidTime
	ErrInvalidDate
	ErrInvalidHemisphere
	ErrInvalidFlag
	ErrInvalidNumeric
)

func (k ParseErrorKind) Error() string {
	switch k {
	case ErrChecksumMismatch:
		return "checksum mismatch"
	case ErrMissingChecksum:
		return "missing checksum"
	case ErrMalformedSentence:
		return "malformed sentence"
	case ErrUnsupportedSentence:
		return "unsupported sentence"
	case ErrFieldCountMismatch:
		return "field count mismatch"
	case ErrInvalidTime:
		return "invalid time"
	case ErrInvalidDate:
		return "invalid date"
	case ErrInvalidHemisphere:
		return "invalid hemisphere"
	case ErrInvalidFlag:
		return "invalid flag"
	case ErrInvalidNumeric:
		return "invalid numeric"
	default:
		return fmt.Sprintf("parse error %d", int(k))
	}
}

// ParseError describes one rejected sentence. Only the members relevant to
// Kind are set.
type ParseError struct {
	Kind ParseErrorKind

	// Tag is the sentence tag as received (e.g. "GPRMC").
	Tag string
	// Field names the offending field, when there is one.
	Field string
	// Value is the offending token.
	Value string

	// Expected and Actual are set for ErrFieldCountMismatch, and hold the
	// checksum bytes for ErrChecksumMismatch.
	Expected int
	Actual   int

	Err error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("nmea: ")
	b.WriteString(e.Kind.Error())
	switch e.Kind {
	case ErrFieldCountMismatch:
		fmt.Fprintf(&b, " (expected %d, got %d)", e.Expected, e.Actual)
	case ErrChecksumMismatch:
		if e.Value == "" {
			fmt.Fprintf(&b, " (want %02X, got %02X)", e.Expected, e.Actual)
		}
	}
	if e.Tag != "" {
		fmt.Fprintf(&b, " tag=%s", e.Tag)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value=%q", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and any underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
