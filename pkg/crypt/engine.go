package crypt

// RequirementFlags mirrors the LUKS2 persistent requirement set. The engine
// reports them as a bitmask so status resolution stays a pure function of it.
type RequirementFlags uint32

const (
	RequirementOfflineReencrypt RequirementFlags = 1 << iota
	RequirementOnlineReencrypt
	RequirementUnknown
)

// ReencryptMode selects what the byte-shifting pass does with the data.
type ReencryptMode string

const (
	ModeEncrypt   ReencryptMode = "encrypt"
	ModeDecrypt   ReencryptMode = "decrypt"
	ModeReencrypt ReencryptMode = "reencrypt"
)

// Direction of the reencryption pass over the device.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// FormatParams describes a LUKS2 header format operation. The header is
// always staged in a detached file during encryption initiation.
type FormatParams struct {
	// Cipher is the cipher name, e.g. "aes".
	Cipher string
	// CipherMode is the block mode, e.g. "xts-plain64".
	CipherMode string
	// KeyBits is the volume key size in bits.
	KeyBits int
	// Header is the detached header file path.
	Header string
	// DataOffsetSectors is the data segment offset in 512-byte sectors.
	DataOffsetSectors int64
	// Passphrase fills the first keyslot.
	Passphrase string
}

// ReencryptParams describes a reencryption (or decryption) pass.
type ReencryptParams struct {
	Mode       ReencryptMode
	Direction  Direction
	// Resilience is the engine checkpoint strategy: "datashift" while
	// encrypting in place, "checksum" otherwise.
	Resilience string
	// DataShiftKiB is the amount of data moved to make room for the header
	// (datashift resilience only).
	DataShiftKiB int64
	// Header is an optional detached header file.
	Header string
	// InitOnly initializes the operation without moving data.
	InitOnly bool
	// ResumeOnly refuses to start anything new and only continues an
	// operation recorded in persistent metadata.
	ResumeOnly bool
	// ActiveName is the cleartext mapping to reencrypt through when the
	// device is online, empty for offline operation.
	ActiveName string
	// Passphrase authenticates the operation.
	Passphrase string
}

// ProgressFunc receives engine progress as processed and total byte counts.
// It is invoked synchronously from the engine call, so per-device ordering
// follows the engine's own checkpointing.
type ProgressFunc func(deviceBytes, deviceSize uint64)

// Engine is the LUKS2 capability the lifecycle code drives. Implementations
// wrap an external engine; failures are reported as wrapped Err* kinds.
type Engine interface {
	// IsLuks reports whether the device carries a recognizable LUKS
	// superblock.
	IsLuks(device string) bool
	// Format writes a new LUKS2 header per params and enrolls the
	// passphrase, returning the keyslot it landed in.
	Format(device string, params FormatParams) (int, error)
	// AddKeyslot enrolls newPassphrase into a free keyslot, authenticating
	// with an existing passphrase. header may be empty for an attached
	// header. Returns the new keyslot index.
	AddKeyslot(device, header, passphrase, newPassphrase string) (int, error)
	// ChangeKeyslot swaps the passphrase of the keyslot that oldPassphrase
	// unlocks, returning the keyslot index holding the new passphrase.
	ChangeKeyslot(device, oldPassphrase, newPassphrase string) (int, error)
	// ReencryptInit initializes a reencryption operation without driving it.
	ReencryptInit(device string, params ReencryptParams) error
	// ReencryptRun drives a reencryption operation to completion, reporting
	// progress through the callback.
	ReencryptRun(device string, params ReencryptParams, progress ProgressFunc) error
	// Activate maps the device under the given name.
	Activate(device, name, passphrase, header string) error
	// Deactivate removes a mapping.
	Deactivate(name string) error
	// HeaderBackup writes the live header into path.
	HeaderBackup(device, path string) error
	// HeaderRestore writes the header stored at path onto the device.
	HeaderRestore(device, path string) error
	// PersistentFlags reads the LUKS2 requirement flags.
	PersistentFlags(device string) (RequirementFlags, error)
	// Tokens returns all token JSON objects keyed by token index.
	Tokens(device string) (map[int]string, error)
	// TokenSet writes tokenJSON at the given index; a negative index picks
	// any free one.
	TokenSet(device string, index int, tokenJSON string) error
	// SetLabel sets the LUKS2 header label.
	SetLabel(device, label string) error
}
