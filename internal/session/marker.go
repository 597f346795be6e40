package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type markerSigner struct {
	secretKey []byte
}

func newMarkerSigner(secret string) *markerSigner {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	return &markerSigner{secretKey: key}
}

func (s *markerSigner) sign(marker string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(marker))
	return marker + "." + hex.EncodeToString(mac.Sum(nil))
}

// parse проверяет подпись и возвращает маркер гостя.
func (s *markerSigner) parse(value string) (string, bool) {
	marker, signature, ok := strings.Cut(value, ".")
	if !ok || marker == "" {
		return "", false
	}

	_, expected, _ := strings.Cut(s.sign(marker), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}
	return marker, true
}
