package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minHMACSecretLen is the shortest secret accepted for HS256 (256 bits).
const minHMACSecretLen = 32

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Inline PEM may use literal \n sequences, as is common when keys are passed through env vars.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// SigningKey pairs a JWT signing method with the keys used to sign and verify.
type SigningKey struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Alg returns the JWT alg header value for the key ("RS256", "ES256" or "HS256").
func (k SigningKey) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// NewAsymmetricKey returns an RS256 or ES256 signing key for the given pair.
func NewAsymmetricKey(private crypto.Signer, public crypto.PublicKey) (SigningKey, error) {
	if private == nil || public == nil {
		return SigningKey{}, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch private.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return SigningKey{}, ErrInvalidKey
	}
	if KeyAlg(public) != method.Alg() {
		return SigningKey{}, ErrInvalidKey
	}
	return SigningKey{method: method, signKey: private, verifyKey: public}, nil
}

// NewHMACKey returns an HS256 signing key. The secret must be at least 32 bytes.
func NewHMACKey(secret []byte) (SigningKey, error) {
	if len(secret) < minHMACSecretLen {
		return SigningKey{}, ErrInvalidKey
	}
	return SigningKey{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret}, nil
}

// LoadSigningKey builds a signing key from config: a PEM pair when both are set, else the HMAC secret.
func LoadSigningKey(privatePEM, publicPEM, secret string) (SigningKey, error) {
	if strings.TrimSpace(privatePEM) != "" || strings.TrimSpace(publicPEM) != "" {
		priv, err := ParsePrivateKey(privatePEM)
		if err != nil {
			return SigningKey{}, err
		}
		pub, err := ParsePublicKey(publicPEM)
		if err != nil {
			return SigningKey{}, err
		}
		return NewAsymmetricKey(priv, pub)
	}
	return NewHMACKey([]byte(secret))
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}
