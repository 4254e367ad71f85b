package auth

import (
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // x5t is defined as a SHA-1 thumbprint.
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// assertionType is the client_assertion_type for JWT client assertions.
const assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime bounds how long a signed assertion is accepted.
const assertionLifetime = 10 * time.Minute

// Certificate is an application certificate and its RSA private key,
// used in place of a client secret.
type Certificate struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// LoadCertificate reads a PEM file holding the certificate and its
// unencrypted private key.
func LoadCertificate(path string) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}

	return ParseCertificate(data)
}

// ParseCertificate parses PEM data holding a CERTIFICATE block and a
// PRIVATE KEY (PKCS#8) or RSA PRIVATE KEY (PKCS#1) block. Only the first
// certificate is used.
func ParseCertificate(data []byte) (*Certificate, error) {
	var c Certificate

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			if c.cert != nil {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing certificate: %w", err)
			}
			c.cert = cert

		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing private key: %w", err)
			}
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is %T, want RSA", key)
			}
			c.key = rsaKey

		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing private key: %w", err)
			}
			c.key = key
		}
	}

	switch {
	case c.cert == nil:
		return nil, errors.New("no certificate found in PEM data")
	case c.key == nil:
		return nil, errors.New("no private key found in PEM data")
	}

	return &c, nil
}

// Thumbprint returns the base64url SHA-1 thumbprint sent as x5t.
func (c *Certificate) Thumbprint() string {
	sum := sha1.Sum(c.cert.Raw) //nolint:gosec
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// assertion signs a client assertion for clientID, addressed to audience.
func (c *Certificate) assertion(clientID, audience string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["x5t"] = c.Thumbprint()

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}

	return signed, nil
}
