package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/util"
)

// DefaultDir is where pending job descriptors live. It must be on a volume
// readable early after boot, before any pending reencryption is resumed.
const DefaultDir = "/boot/usec-crypt"

const (
	encryptFile = "encrypt.json"
	decryptFile = "decrypt.json"
)

// EncryptConfig is the persisted descriptor of a staged encryption. It is
// the durable source of truth for resuming the job across reboots.
type EncryptConfig struct {
	// ClearDev names the cleartext mapping of the opened device.
	ClearDev string `json:"volume"`
	// Device is the backing device reference in UUID=<uuid> form.
	Device string `json:"device"`
	// DevicePath is the backing device path.
	DevicePath string `json:"device-path"`
	// DeviceName is the display name shown to the user.
	DeviceName string `json:"device-name"`
	MountPoint string `json:"device-mountpoint"`
	Cipher     string `json:"cipher"`
	KeySize    string `json:"key-size"`
	// Mode records the credential scheme: pin, tpm-pin or tpm.
	Mode         string          `json:"mode"`
	RecoveryPath string          `json:"recoverykey-path"`
	TPMConfig    json.RawMessage `json:"tpm-config,omitempty"`
}

// DecryptConfig is the persisted descriptor of a decryption deferred to the
// next boot.
type DecryptConfig struct {
	Device     string `json:"device"`
	DevicePath string `json:"device-path"`
}

// Store persists job descriptors at a well-known directory. The system
// models at most one outstanding cross-reboot job of each kind; a write
// replaces any existing descriptor.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

func (s *Store) WriteEncrypt(cfg *EncryptConfig) error {
	return s.write(encryptFile, cfg)
}

// ReadEncrypt loads the pending encryption descriptor. A missing or
// malformed file means no pending job, never an error.
func (s *Store) ReadEncrypt() (*EncryptConfig, bool) {
	cfg := &EncryptConfig{}
	if !s.read(encryptFile, cfg) {
		return nil, false
	}
	return cfg, true
}

func (s *Store) RemoveEncrypt() {
	s.remove(encryptFile)
}

func (s *Store) WriteDecrypt(cfg *DecryptConfig) error {
	return s.write(decryptFile, cfg)
}

func (s *Store) ReadDecrypt() (*DecryptConfig, bool) {
	cfg := &DecryptConfig{}
	if !s.read(decryptFile, cfg) {
		return nil, false
	}
	return cfg, true
}

func (s *Store) RemoveDecrypt() {
	s.remove(decryptFile)
}

func (s *Store) write(name string, cfg any) error {
	if err := util.MakeDir(s.dir); err != nil {
		return fmt.Errorf("could not create %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, name)
	if exists, _ := util.ExistsPath(path); exists {
		klog.InfoS("Pending job descriptor exists, superseding it", "path", path)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", name, err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

func (s *Store) read(name string, cfg any) bool {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			klog.ErrorS(err, "Could not read job descriptor, assuming no pending job", "path", path)
		}
		return false
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		klog.ErrorS(err, "Malformed job descriptor, assuming no pending job", "path", path)
		return false
	}
	return true
}

func (s *Store) remove(name string) {
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		klog.ErrorS(err, "Could not remove job descriptor", "path", path)
		return
	}
	klog.V(2).InfoS("Job descriptor removed", "path", path)
}
