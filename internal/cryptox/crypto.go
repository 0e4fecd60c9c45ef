// Package cryptox implements the cryptographic primitives used by the search
// and key-management layers: AEAD encryption of payloads and data keys,
// keyed-hash signatures, and password-based key derivation.
//
// Functions in this package never log and never retain plaintext or key
// material beyond the call.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/ztmed/emrsearch/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// AlgorithmAESGCM marks payloads wrapped locally with AES-256-GCM.
	AlgorithmAESGCM = "aes-256-gcm"

	// AlgorithmExternalTransit marks envelope keys wrapped by an external
	// transit KMS; the ciphertext is opaque to this process.
	AlgorithmExternalTransit = "external-transit"

	// KeySize is the symmetric key size in bytes (AES-256).
	KeySize = 32

	// IVSize is the GCM nonce size in bytes.
	IVSize = 12

	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16

	// MinPBKDF2Iterations is the floor applied to DeriveKey iteration counts.
	MinPBKDF2Iterations = 10000
)

// aadContext is authenticated but not secret. It binds ciphertexts produced
// by Encrypt to this application so they cannot be replayed elsewhere.
var aadContext = []byte("emr-search-v1")

// EncryptionResult is the wire shape of an AEAD-encrypted payload. The tag is
// kept separate from the ciphertext so storage layers can persist the parts
// individually.
type EncryptionResult struct {
	Ciphertext []byte `json:"encryptedData"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"authTag"`
	KeyID      string `json:"keyId,omitempty"`
	Algorithm  string `json:"algorithm"`
}

// Encrypt seals plaintext under key with AES-256-GCM, generating a fresh
// random IV per call. The fixed application context string is attached as
// additional authenticated data.
func Encrypt(plaintext, key []byte) (*EncryptionResult, error) {
	return EncryptWithAAD(plaintext, key, aadContext)
}

// EncryptWithAAD seals plaintext under key, authenticating aad alongside the
// ciphertext. Decryption succeeds only with an identical aad.
func EncryptWithAAD(plaintext, key, aad []byte) (*EncryptionResult, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := common.GenerateRandByteArray(IVSize)
	sealed := aesgcm.Seal(nil, iv, plaintext, aad)

	// Seal appends the tag to the ciphertext; split them apart.
	n := len(sealed) - TagSize
	return &EncryptionResult{
		Ciphertext: sealed[:n],
		IV:         iv,
		Tag:        sealed[n:],
		Algorithm:  AlgorithmAESGCM,
	}, nil
}

// Decrypt opens an EncryptionResult produced by Encrypt. It fails closed on
// an unsupported algorithm, a malformed IV or tag, or a failed tag check,
// always with an error matching common.ErrCrypto.
func Decrypt(result *EncryptionResult, key []byte) ([]byte, error) {
	return DecryptWithAAD(result, key, aadContext)
}

// DecryptWithAAD opens an EncryptionResult whose additional authenticated
// data was aad at encryption time.
func DecryptWithAAD(result *EncryptionResult, key, aad []byte) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: missing encryption result", common.ErrCrypto)
	}
	if result.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", common.ErrCrypto, result.Algorithm)
	}
	if len(result.IV) != IVSize {
		return nil, fmt.Errorf("%w: malformed iv", common.ErrCrypto)
	}
	if len(result.Tag) != TagSize {
		return nil, fmt.Errorf("%w: malformed auth tag", common.ErrCrypto)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(result.Ciphertext)+TagSize)
	sealed = append(sealed, result.Ciphertext...)
	sealed = append(sealed, result.Tag...)

	plaintext, err := aesgcm.Open(nil, result.IV, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrCrypto)
	}
	return plaintext, nil
}

// Sign computes an HMAC-SHA256 signature of data under key.
func Sign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify reports whether signature is a valid HMAC-SHA256 signature of data
// under key. The comparison is constant-time. A mismatch returns false,
// never an error.
func Verify(data, signature, key []byte) bool {
	expected := Sign(data, key)
	return hmac.Equal(signature, expected)
}

// DeriveKey derives a key of the given length from a password and salt using
// PBKDF2-SHA256. Iteration counts below MinPBKDF2Iterations are raised to
// the floor.
func DeriveKey(password, salt []byte, iterations, length int) []byte {
	if iterations < MinPBKDF2Iterations {
		iterations = MinPBKDF2Iterations
	}
	return pbkdf2.Key(password, salt, iterations, length, sha256.New)
}

// DeriveMasterKey derives the process master key from a configured secret
// and salt using Argon2id.
func DeriveMasterKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return aesgcm, nil
}
