// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"time"
)

type Config struct {
	PubPath  string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// LoadVerifier reads the issuer's public key and builds a Verifier.
func LoadVerifier(cfg Config) (*Verifier, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}

	v := NewVerifier(pub, cfg.Issuer, cfg.Audience)
	v.leeway = cfg.Leeway
	return v, nil
}
