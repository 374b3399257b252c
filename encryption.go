package coursesync

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptionNonceSize is the nonce size for AES-GCM.
	encryptionNonceSize = 12
	// encryptionSaltSize is the salt size for key derivation.
	encryptionSaltSize = 32
	// encryptionKeySize is the AES-256 key size.
	encryptionKeySize = 32
	// pbkdf2Iterations is the number of iterations for key derivation.
	pbkdf2Iterations = 100000
)

// EncryptionConfig configures at-rest encryption of the persisted offline
// queue. An edit queue routinely carries unpublished course material, so
// stores on shared devices can opt in.
type EncryptionConfig struct {
	// Enabled turns on encryption of the persisted state blob.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Key is the encryption key (must be 32 bytes for AES-256).
	// If empty, KeyPassword is used to derive a key.
	Key []byte `json:"-" yaml:"-"`
	// KeyPassword is used to derive the encryption key via PBKDF2.
	KeyPassword string `json:"-" yaml:"key_password,omitempty"`
}

// Encryptor encrypts and decrypts persisted state blobs. Each sealed blob is
// self-contained: salt then nonce then ciphertext, so decryption needs only
// the original password or key.
type Encryptor struct {
	key      []byte
	password string
}

// NewEncryptor creates an encryptor from a key or password. Returns
// (nil, nil) when encryption is disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != encryptionKeySize {
			return nil, ErrEncryptionKey
		}
		return &Encryptor{key: cfg.Key}, nil
	}
	if cfg.KeyPassword != "" {
		return &Encryptor{password: cfg.KeyPassword}, nil
	}
	return nil, errors.New("encryption enabled but no key or password provided")
}

// Encrypt seals plaintext into a self-contained blob.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, encryptionSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, encryptionNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, encryptionSaltSize+encryptionNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func (e *Encryptor) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < encryptionSaltSize+encryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}

	salt := sealed[:encryptionSaltSize]
	nonce := sealed[encryptionSaltSize : encryptionSaltSize+encryptionNonceSize]
	ciphertext := sealed[encryptionSaltSize+encryptionNonceSize:]

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// aead builds the AES-GCM cipher for the given salt. When a raw key is
// configured the salt is ignored.
func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := e.key
	if len(key) == 0 {
		key = pbkdf2.Key([]byte(e.password), salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
