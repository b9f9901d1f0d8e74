package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyPair holds a freshly generated or reconstructed Ed25519 identity.
// PrivateKey is the 64-byte seed-plus-public form Go's crypto/ed25519
// produces natively; this is also the "64-byte seed+public" shape the
// credential store persists.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 identity.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: generate key pair: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// PublicKeyBase64 returns the 32-byte public key, base64-encoded.
func (k *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.PublicKey)
}

// PrivateKeyBase64 returns the 64-byte seed+public private key, base64-encoded.
func (k *KeyPair) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.PrivateKey)
}

// KeyPairFromBase64 reconstructs a KeyPair from persisted base64 strings.
// privateKeyB64 may decode to either 64 bytes (seed+public, Go/PyNaCl
// "64-byte seed+public" layout) or 32 bytes (seed only); both are
// accepted since credentials produced by other language SDKs use the
// shorter form.
func KeyPairFromBase64(publicKeyB64, privateKeyB64 string) (*KeyPair, error) {
	privBytes, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("signing: decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(privBytes) {
	case ed25519.PrivateKeySize: // 64
		priv = ed25519.PrivateKey(privBytes)
	case ed25519.SeedSize: // 32
		priv = ed25519.NewKeyFromSeed(privBytes)
	default:
		return nil, fmt.Errorf("signing: invalid private key length %d (expected %d or %d)",
			len(privBytes), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pub := priv.Public().(ed25519.PublicKey)

	if publicKeyB64 != "" {
		expected, err := base64.StdEncoding.DecodeString(publicKeyB64)
		if err != nil {
			return nil, fmt.Errorf("signing: decode public key: %w", err)
		}
		if !ed25519EqualBytes(expected, pub) {
			return nil, fmt.Errorf("signing: public key does not match private key")
		}
	}

	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

func ed25519EqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SignBytes signs arbitrary bytes with the private key, returning the
// base64-encoded 64-byte signature.
func (k *KeyPair) SignBytes(message []byte) string {
	sig := ed25519.Sign(k.PrivateKey, message)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify checks a base64-encoded signature against a base64-encoded
// public key and the original message bytes. Exposed for tests; the
// control plane is the authoritative verifier in production.
func Verify(publicKeyB64, signatureB64 string, message []byte) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, fmt.Errorf("signing: decode public key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("signing: decode signature: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signing: invalid public key length %d", len(pub))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig), nil
}

// SignActionPayload signs the canonical-JSON form of a VerificationRequest
// with its Signature/PublicKey fields absent. v must already have those
// fields zeroed/omitted before being passed in.
func (k *KeyPair) SignActionPayload(v interface{}) (string, error) {
	canonical, err := ActionPayloadJSON(v)
	if err != nil {
		return "", err
	}
	return k.SignBytes(canonical), nil
}

// Envelope is the set of headers produced by HTTP envelope signing.
type Envelope struct {
	AgentID   string
	Signature string
	Timestamp string
	PublicKey string
}

// SignEnvelope builds the signing message for an HTTP request - method,
// path, unix timestamp, and (if present) the canonical JSON of the body -
// joined by newlines, and signs it. The returned body bytes, if non-nil,
// are exactly what must be transmitted on the wire: callers must send
// these raw bytes rather than re-serialize the original value.
func (k *KeyPair) SignEnvelope(agentID, method, path string, body interface{}) (Envelope, []byte, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	parts := []string{strings.ToUpper(method), path, ts}

	var bodyBytes []byte
	if body != nil {
		canonical, err := EnvelopeBodyJSON(body)
		if err != nil {
			return Envelope{}, nil, err
		}
		bodyBytes = canonical
		parts = append(parts, string(canonical))
	}

	message := strings.Join(parts, "\n")
	sig := k.SignBytes([]byte(message))

	return Envelope{
		AgentID:   agentID,
		Signature: sig,
		Timestamp: ts,
		PublicKey: k.PublicKeyBase64(),
	}, bodyBytes, nil
}
