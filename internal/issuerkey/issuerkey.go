// Package issuerkey holds the issuer's signing key material as JWKs. The
// private key is only ever handed to the external signer.
package issuerkey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Keys is the issuer key pair.
type Keys struct {
	private jwk.Key
	public  jwk.Key
	kid     string
}

// Parse reads a private JWK. A missing kid is set to the RFC 7638 SHA-256
// thumbprint of the public key, and a missing alg is derived from the curve.
func Parse(raw []byte) (*Keys, error) {
	if len(raw) == 0 {
		return nil, errors.New("issuer key: empty jwk")
	}
	private, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("issuer key: parse jwk: %w", err)
	}
	return fromKey(private)
}

// Generate creates an ephemeral P-256 key for development.
func Generate() (*Keys, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("issuer key: generate: %w", err)
	}
	private, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("issuer key: wrap generated key: %w", err)
	}
	return fromKey(private)
}

func fromKey(private jwk.Key) (*Keys, error) {
	if _, isPrivate := private.(jwk.ECDSAPrivateKey); !isPrivate {
		if _, isOKP := private.(jwk.OKPPrivateKey); !isOKP {
			if _, isRSA := private.(jwk.RSAPrivateKey); !isRSA {
				return nil, errors.New("issuer key: jwk is not a private key")
			}
		}
	}
	if private.Algorithm().String() == "" {
		if ec, ok := private.(jwk.ECDSAPrivateKey); ok && ec.Crv() == jwa.P256 {
			if err := private.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
				return nil, fmt.Errorf("issuer key: set alg: %w", err)
			}
		}
	}
	public, err := jwk.PublicKeyOf(private)
	if err != nil {
		return nil, fmt.Errorf("issuer key: derive public key: %w", err)
	}
	kid := private.KeyID()
	if kid == "" {
		thumb, err := public.Thumbprint(crypto.SHA256)
		if err != nil {
			return nil, fmt.Errorf("issuer key: thumbprint: %w", err)
		}
		kid = base64.RawURLEncoding.EncodeToString(thumb)
		if err := private.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, fmt.Errorf("issuer key: set kid: %w", err)
		}
	}
	if err := public.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, fmt.Errorf("issuer key: set kid: %w", err)
	}
	return &Keys{private: private, public: public, kid: kid}, nil
}

// KeyID returns the key id advertised in the JWKS.
func (k *Keys) KeyID() string {
	return k.kid
}

// PrivateJSON returns the private JWK for the signer.
func (k *Keys) PrivateJSON() json.RawMessage {
	b, _ := json.Marshal(k.private)
	return b
}

// PublicJSON returns the public JWK.
func (k *Keys) PublicJSON() json.RawMessage {
	b, _ := json.Marshal(k.public)
	return b
}

// JWKS returns the public key set published at /jwks.
func (k *Keys) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	if err := set.AddKey(k.public); err != nil {
		return nil, fmt.Errorf("issuer key: build jwks: %w", err)
	}
	return set, nil
}
