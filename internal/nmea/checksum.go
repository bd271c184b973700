package nmea

import (
	"encoding/hex"
	"fmt"
)

// Checksum is the XOR of every byte of body, where body is the text between
// '$' and '*'.
func Checksum(body string) byte {
	ck := byte(0)
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// Encode wraps body as a complete sentence: "$" + body + "*HH\r\n".
func Encode(body string) []byte {
	return []byte(fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body)))
}

func decodeChecksum(s string) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, false
	}
	return b[0], true
}
