package usecase

import (
	"crypto/sha256"
	"encoding/hex"
)

func digest(canon Canonicalizer, payload any) (string, error) {
	canonical, err := canon.CanonicalizeAny(payload)
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
