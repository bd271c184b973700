// Package gps runs an NMEA receiver: it opens a byte source (serial port,
// TCP feed, helper program, capture replay or simulator), frames and parses
// sentences with package nmea, and keeps a merged fix snapshot for the rest
// of the process.
//
// Failures never bring down the caller: sources are reopened with backoff and
// malformed input is counted and skipped.
package gps
