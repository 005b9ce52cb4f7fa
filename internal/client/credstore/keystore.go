package credstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Keystore wraps an inner Store with authenticated encryption, standing in
// for the platform's secure per-device keystore when running as a packaged
// mobile shell. Values are sealed with XChaCha20-Poly1305 under a key
// derived from the device secret; the key name is bound as associated data
// so a sealed value cannot be replayed under a different key.
type Keystore struct {
	inner Store
	key   [chacha20poly1305.KeySize]byte
}

func NewKeystore(inner Store, deviceSecret string) *Keystore {
	return &Keystore{
		inner: inner,
		key:   sha256.Sum256([]byte(deviceSecret)),
	}
}

func (k *Keystore) Read(key string) (string, error) {
	sealed, err := k.inner.Read(key)
	if err != nil {
		return "", err
	}
	return k.open(key, sealed)
}

func (k *Keystore) Write(key, value string) error {
	sealed, err := k.seal(key, value)
	if err != nil {
		return err
	}
	return k.inner.Write(key, sealed)
}

func (k *Keystore) Delete(key string) error {
	return k.inner.Delete(key)
}

func (k *Keystore) Subscribe(fn func(key string)) (cancel func()) {
	return k.inner.Subscribe(fn)
}

func (k *Keystore) seal(name, value string) (string, error) {
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (k *Keystore) open(name, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("keystore value corrupt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("keystore value truncated")
	}
	nonce, box := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, []byte(name))
	if err != nil {
		return "", fmt.Errorf("keystore open: %w", err)
	}
	return string(plain), nil
}
