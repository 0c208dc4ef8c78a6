package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// generateOneTimeToken produce un token aleatorio de un solo uso.
// Solo el hash irreversible se persiste; el valor crudo viaja por email.
// El hash es determinista (sin sal) porque el lookup es por igualdad de hash
// y el valor crudo ya trae 256 bits de entropia.
func generateOneTimeToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashOneTimeToken(raw), nil
}

func hashOneTimeToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
