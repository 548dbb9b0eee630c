package worker

import (
	"encoding/json"
	"strings"
)

// EncMode is the credential scheme chosen for an encrypted device.
type EncMode int

const (
	ModePin EncMode = iota
	ModeTPMPin
	ModeTPM
)

func (m EncMode) String() string {
	switch m {
	case ModeTPMPin:
		return "tpm-pin"
	case ModeTPM:
		return "tpm"
	default:
		return "pin"
	}
}

// RecoveryKeyPolicy decides whether a failed recovery-key enrollment aborts
// the encryption or is only logged.
type RecoveryKeyPolicy int

const (
	RecoveryKeyBestEffort RecoveryKeyPolicy = iota
	RecoveryKeyRequired
)

// PrepareRequest initiates encryption of a device. With InitOnly the
// parameters are persisted and the disruptive work is deferred to the next
// boot; otherwise the header is staged and reencryption initialized
// immediately.
type PrepareRequest struct {
	Device     string
	DeviceName string
	UUID       string
	MountPoint string
	Passphrase string
	Cipher     string
	Mode       EncMode
	// RecoveryExportPath is the directory the generated recovery key file
	// is written to, empty to skip recovery key enrollment.
	RecoveryExportPath string
	// TPMToken is the sealed token blob to attach after encryption.
	TPMToken  string
	TPMConfig json.RawMessage
	InitOnly  bool
}

// DecryptRequest reverts a device to plaintext.
type DecryptRequest struct {
	Device     string
	DeviceName string
	UUID       string
	Passphrase string
	InitOnly   bool
}

// ChangePassphraseRequest rotates a device credential. With UseRecoveryKey
// the old credential is a recovery passphrase and the new one lands in a
// fresh keyslot.
type ChangePassphraseRequest struct {
	Device        string
	DeviceName    string
	OldPassphrase string
	NewPassphrase string
	UseRecoveryKey bool
	// TPMToken, when set, is repointed at the new keyslot after the swap.
	TPMToken string
}

// ResumeRequest continues an interrupted online reencryption.
type ResumeRequest struct {
	Device     string
	Passphrase string
	// ClearDev is the cleartext mapping name to reencrypt through, empty
	// for offline operation.
	ClearDev string
	ExpandFS bool
}

// parseCipher splits a requested cipher spec into engine parameters.
func parseCipher(full string) (cipher, mode string, bits int) {
	cipher = strings.TrimSuffix(full, "-xts-plain64")
	if cipher == "" {
		cipher = "aes"
	}
	return cipher, "xts-plain64", 256
}

// deviceTag derives the short name used for staged files and mappings,
// e.g. "sdb1" for /dev/sdb1.
func deviceTag(device string) string {
	return strings.ReplaceAll(strings.TrimPrefix(device, "/dev/"), "/", "_")
}
