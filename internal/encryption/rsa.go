// Package encryption implements the request envelope for sensitive
// endpoints: bodies are RSA-OAEP(MGF1-SHA256) encrypted against the
// server's public key, which clients fetch from GET /rsa_key.
package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"os"

	"kasupel-server/internal/kerrors"
)

const keyBits = 2048

// Service holds the server key pair.
type Service struct {
	key       *rsa.PrivateKey
	publicPEM string
}

// Load reads the private key from a PEM file, generating and saving a fresh
// key on first boot.
func Load(path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generate(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading RSA key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA key: %w", err)
	}
	return newService(key), nil
}

func generate(path string) (*Service, error) {
	log.Printf("Encryption: generating new %d-bit RSA key at %s", keyBits, path)
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("saving RSA key: %w", err)
	}
	return newService(key), nil
}

func newService(key *rsa.PrivateKey) *Service {
	pub := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})
	return &Service{key: key, publicPEM: string(pub)}
}

// PublicKeyPEM is served verbatim from GET /rsa_key.
func (s *Service) PublicKeyPEM() string {
	return s.publicPEM
}

// DecryptRequest unwraps an encrypted request body: base64, then OAEP. The
// plaintext is the JSON the handler would otherwise have read directly.
func (s *Service) DecryptRequest(raw []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, kerrors.New(kerrors.BadEncryption)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.key, ciphertext, nil)
	if err != nil {
		return nil, kerrors.New(kerrors.BadEncryption)
	}
	return plaintext, nil
}

// Encrypt is the inverse of DecryptRequest, for tests and local tooling.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &s.key.PublicKey, plaintext, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(out, ciphertext)
	return out, nil
}
