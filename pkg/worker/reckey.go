package worker

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diskcrypt/diskcryptd/pkg/util"
)

// recoveryKeyLength matches the length users are asked to transcribe.
const recoveryKeyLength = 24

// no 0/O or 1/I, the key is meant to be typed from a printout
const recoveryKeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRecoveryKey returns a fresh random recovery passphrase.
func GenerateRecoveryKey() (string, error) {
	buf := make([]byte, recoveryKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate recovery key: %w", err)
	}
	for i, b := range buf {
		buf[i] = recoveryKeyAlphabet[int(b)%len(recoveryKeyAlphabet)]
	}
	return string(buf), nil
}

// ExportRecoveryKey generates a recovery key and writes it into dir as
// <tag>_recovery_key.txt, returning the key.
func ExportRecoveryKey(dir, device string) (string, error) {
	exists, err := util.ExistsPath(dir)
	if err != nil || !exists {
		return "", fmt.Errorf("recovery export path %s does not exist: %v", dir, err)
	}
	key, err := GenerateRecoveryKey()
	if err != nil {
		return "", err
	}
	name := filepath.Join(dir, deviceTag(device)+"_recovery_key.txt")
	if err := os.WriteFile(name, []byte(key), 0600); err != nil {
		return "", fmt.Errorf("could not write recovery key file: %w", err)
	}
	return key, nil
}
