package attendance

import (
	"math/rand"
	"time"
)

// codeAlphabet is deliberately uppercase alphanumeric: codes are read out loud
// and typed by students, not pasted.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func init() {
	rand.Seed(time.Now().UnixNano())
}

// GenerateCode draws a fixed-length session code from the process-wide random
// source. Codes are not auth tokens; uniqueness is enforced by the store.
func GenerateCode(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
