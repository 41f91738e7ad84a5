package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// envelopePrefix помечает зашифрованные значения. Всё, что без метки, считается
// старым незашифрованным значением и отдается как есть.
const envelopePrefix = "enc1:"

var (
	ErrKeyDerivation = errors.New("key derivation failed")
	ErrEncrypt       = errors.New("encryption failed")
)

// Codec шифрует строковые значения хранилища статическим ключом приложения (AES-256-GCM).
type Codec struct {
	aead cipher.AEAD
}

// NewCodec создает кодек из парольной фразы.
func NewCodec(passphrase, kdf string) (*Codec, error) {
	key, err := DeriveKey(passphrase, kdf)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	return NewCodecFromKey(key)
}

// NewCodecFromKey создает кодек из готового 32-байтного ключа.
func NewCodecFromKey(key []byte) (*Codec, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("%w: ключ должен быть %d байт", ErrKeyDerivation, keyLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: gcm}, nil
}

// Encrypt шифрует строку со случайным nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt пытается расшифровать значение. ok == false означает, что значение
// не зашифровано нашим ключом; пустой plaintext при ok == true - нормальное значение.
func (c *Codec) Decrypt(value string) (plaintext string, ok bool) {
	if !strings.HasPrefix(value, envelopePrefix) {
		return "", false
	}

	sealed, err := base64.StdEncoding.DecodeString(value[len(envelopePrefix):])
	if err != nil {
		return "", false
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return "", false
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	out, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false
	}

	return string(out), true
}

// Open расшифровывает значение, а если не вышло - возвращает исходную строку.
func (c *Codec) Open(value string) string {
	if plaintext, ok := c.Decrypt(value); ok {
		return plaintext
	}
	return value
}

// SealedLen - длина зашифрованного значения для plaintext длиной n байт.
func (c *Codec) SealedLen(n int) int {
	return len(envelopePrefix) + base64.StdEncoding.EncodedLen(c.aead.NonceSize()+n+c.aead.Overhead())
}
