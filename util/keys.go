package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

type RsaKeyPair struct {
	Private string
	Public  string
}

// GeneratePemKeypair generates a fresh RSA keypair and returns both halves
// as PEM strings. The public key uses PKIX encoding so remote servers can
// load it from the actor document.
func GeneratePemKeypair() (*RsaKeyPair, error) {
	bitSize := 2048

	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubBytes,
		},
	)

	return &RsaKeyPair{Private: string(keyPEM), Public: string(pubPEM)}, nil
}

// LoadOrCreateKeypair loads the actor keypair from dir, generating and
// persisting a new one on first start.
func LoadOrCreateKeypair(dir string) (*RsaKeyPair, error) {
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")

	private, errPriv := os.ReadFile(privatePath)
	public, errPub := os.ReadFile(publicPath)
	if errPriv == nil && errPub == nil {
		return &RsaKeyPair{Private: string(private), Public: string(public)}, nil
	}

	pair, err := GeneratePemKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(privatePath, []byte(pair.Private), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(pair.Public), 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return pair, nil
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}
