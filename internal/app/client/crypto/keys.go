package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KDFPBKDF2 = "pbkdf2"
	KDFArgon2 = "argon2id"

	// Константы для PBKDF2
	pbkdf2Iterations = 100000

	// Константы для Argon2
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4

	keyLength = 32 // 256 бит для AES-256

	// DevStorageKey - фолбек для разработки, в prod запрещен конфигом
	DevStorageKey = "dev-key-change-in-prod-build"
)

// Ключ статический на всё приложение, поэтому и соль фиксированная:
// одна и та же фраза всегда дает один и тот же ключ.
var appSalt = []byte("bodytweaker.storage.v1")

// DeriveKey выводит ключ AES-256 из парольной фразы выбранным алгоритмом.
func DeriveKey(passphrase, kdf string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: пустая парольная фраза", ErrKeyDerivation)
	}

	switch kdf {
	case "", KDFPBKDF2:
		return pbkdf2.Key([]byte(passphrase), appSalt, pbkdf2Iterations, keyLength, sha256.New), nil
	case KDFArgon2:
		return argon2.IDKey([]byte(passphrase), appSalt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
	default:
		return nil, fmt.Errorf("%w: неподдерживаемый алгоритм %q", ErrKeyDerivation, kdf)
	}
}
