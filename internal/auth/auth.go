// Package auth provides Podwave API authentication using HMAC-SHA256 signatures.
package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"time"
)

// Credentials holds the access key and shared secret for signing requests.
type Credentials struct {
	KeyID  string // Access key ID from the Podwave console
	Secret []byte // Shared secret for HMAC signing
}

// LoadCredentials loads credentials from a key ID and secret file path.
func LoadCredentials(keyID, secretPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("access key ID is required")
	}
	if secretPath == "" {
		return nil, fmt.Errorf("secret path is required")
	}

	secret, err := LoadSecret(secretPath)
	if err != nil {
		return nil, fmt.Errorf("load secret: %w", err)
	}

	return &Credentials{
		KeyID:  keyID,
		Secret: secret,
	}, nil
}

// LoadSecret loads the shared secret from a file. Surrounding
// whitespace is trimmed so a trailing newline in the secret file does
// not change the signature.
func LoadSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}

	secret := bytes.TrimSpace(data)
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret file is empty")
	}

	return secret, nil
}

// SignRequest generates authentication headers for a Podwave API request.
// For gateway connections, method should be "GET" and path should be
// HandshakePath.
func (c *Credentials) SignRequest(method, path string) map[string]string {
	timestampMs := time.Now().UnixMilli()

	signature := c.generateSignature(timestampMs, method, path)

	return map[string]string{
		"PODWAVE-ACCESS-KEY":       c.KeyID,
		"PODWAVE-ACCESS-TIMESTAMP": fmt.Sprintf("%d", timestampMs),
		"PODWAVE-ACCESS-SIGNATURE": signature,
	}
}

// generateSignature creates an HMAC-SHA256 signature for the given request.
// Message format: timestamp_ms + method + path
func (c *Credentials) generateSignature(timestampMs int64, method, path string) string {
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)

	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// HandshakePath is the path used for gateway handshake signature generation.
const HandshakePath = "/realtime"

// SignHandshake generates authentication headers specifically for gateway
// connections.
func (c *Credentials) SignHandshake() map[string]string {
	return c.SignRequest("GET", HandshakePath)
}
