package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Service is the canonicalizer handed to the audit chain and backup stamps.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) CanonicalizeAny(payload any) ([]byte, error) {
	return CanonicalizeAny(payload)
}

// Digest returns the lowercase sha256 hex of payload's canonical form.
func (s *Service) Digest(payload any) (string, error) {
	canonical, err := CanonicalizeAny(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
