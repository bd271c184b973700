// Package nmea frames and parses NMEA 0183 sentences from a receiver byte
// stream.
//
// Framer pulls bytes from an io.Reader and yields one '$'-led,
// LF-terminated sentence at a time, discarding noise and resynchronizing
// after malformed spans. Parser turns one sentence into a Record. Neither
// does any logging or spawns goroutines; the caller drives both in a loop and
// decides what to do with errors:
//
//	fr := nmea.NewFramer(port, nmea.FramerConfig{})
//	for {
//		res, err := fr.Next()
//		if err != nil {
//			// *FramingError: already resynchronized, keep going.
//			continue
//		}
//		switch res.Status {
//		case nmea.StatusPending:
//			time.Sleep(50 * time.Millisecond)
//		case nmea.StatusEndOfStream:
//			return
//		case nmea.StatusMessage:
//			rec, err := nmea.Parse(res.Sentence)
//			...
//		}
//	}
package nmea
