package backup

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
)

const nonceSize = 24

// deriveKey stretches an operator-supplied passphrase (DSR_BACKUP_ENCRYPTION_KEY)
// into the fixed-size key secretbox requires.
func deriveKey(passphrase string) [32]byte {
	return sha256.Sum256([]byte(passphrase))
}

// encryptArchive seals data with a fresh random nonce, prefixed to the
// ciphertext so decryptArchive can recover it.
func encryptArchive(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.EncryptionFailed(fmt.Errorf("empty encryption key"))
	}
	key := deriveKey(passphrase)

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.EncryptionFailed(err)
	}

	out := make([]byte, 0, nonceSize+len(data)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, data, &nonce, &key)
	return out, nil
}

// decryptArchive reverses encryptArchive.
func decryptArchive(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errors.DecryptionFailed(fmt.Errorf("sealed archive too short"))
	}
	key := deriveKey(passphrase)

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &key)
	if !ok {
		return nil, errors.DecryptionFailed(fmt.Errorf("authentication failed"))
	}
	return out, nil
}
