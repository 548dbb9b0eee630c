package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/device"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
	"github.com/diskcrypt/diskcryptd/pkg/systab"
	"github.com/diskcrypt/diskcryptd/pkg/util"
)

const (
	// headerSizeBytes is the space reserved for the relocated LUKS2 header.
	headerSizeBytes = 32 * 1024 * 1024
	// dataOffsetSectors is headerSizeBytes in 512-byte sectors.
	dataOffsetSectors = 65536
	// dataShiftKiB is how far the first data segment moves to make room.
	dataShiftKiB = 32 * 1024
)

// Prepare stages the encryption of a device: header setup, keyslot
// enrollment and reencryption initialization, or only the persisted
// parameters when the work must wait for the next boot.
type Prepare struct {
	Req      PrepareRequest
	Engine   crypt.Engine
	Monitor  device.Monitor
	Resolver *crypt.StatusResolver
	Resizer  fsresize.Resizer
	Store    *jobstore.Store
	Tables   *systab.Synchronizer

	DisabledMountPoints []string
	RecoveryPolicy      RecoveryKeyPolicy

	// set on success of the immediate path
	PassSlot     int
	RecoverySlot int
}

var _ job.Runner = &Prepare{}

func (w *Prepare) Run(ctx context.Context) job.Code {
	logger := klog.FromContext(ctx)
	for _, mpt := range w.DisabledMountPoints {
		if strings.EqualFold(mpt, w.Req.MountPoint) {
			logger.Info("Device is mounted at a disabled mount point, refusing to encrypt", "mountPoint", w.Req.MountPoint)
			return job.CodeDisabledMountPoint
		}
	}

	if w.Req.InitOnly {
		return w.persistParams(logger)
	}

	if code := w.validate(logger); !code.OK() {
		return code
	}
	return w.setupHeader(logger)
}

// persistParams captures the encryption parameters for the next boot: the
// filesystem cannot be shrunk while the device is mounted as a boot volume.
func (w *Prepare) persistParams(logger klog.Logger) job.Code {
	cfg := &jobstore.EncryptConfig{
		ClearDev:   "dm-" + deviceTag(w.Req.Device),
		Device:     "UUID=" + w.Req.UUID,
		DevicePath: w.Req.Device,
		DeviceName: w.Req.DeviceName,
		MountPoint: w.Req.MountPoint,
		Cipher:     w.Req.Cipher + "-xts-plain64",
		KeySize:    "256",
		Mode:       w.Req.Mode.String(),
		TPMConfig:  w.Req.TPMConfig,
	}
	if w.Req.RecoveryExportPath != "" {
		cfg.RecoveryPath = filepath.Join(w.Req.RecoveryExportPath, deviceTag(w.Req.Device)+"_recovery_key.txt")
	}
	if err := w.Store.WriteEncrypt(cfg); err != nil {
		logger.Error(err, "Could not persist encryption parameters")
		return job.CodeOpenFile
	}
	if err := w.Tables.SetFstabTimeout(w.Req.Device, w.Req.UUID); err != nil {
		// the descriptor is what drives the resume; a missing timeout
		// option only slows the next boot down
		logger.Error(err, "Could not set boot timeout option")
	}
	return job.CodeSuccess
}

func (w *Prepare) validate(logger klog.Logger) job.Code {
	isBlock, err := w.Monitor.IsBlockDevice(w.Req.Device)
	if err != nil || !isBlock {
		logger.Info("Device is not a block special file", "device", w.Req.Device, "err", err)
		return job.CodeParamsInvalid
	}
	if w.Req.RecoveryExportPath != "" {
		if exists, err := util.ExistsPath(w.Req.RecoveryExportPath); err != nil || !exists {
			logger.Info("Recovery export path does not exist", "path", w.Req.RecoveryExportPath)
			return job.CodeParamsInvalid
		}
	}

	version, err := w.Resolver.ResolveFormatVersion(w.Req.Device)
	if err != nil {
		return job.CodeOf(err)
	}
	if version != crypt.NotEncrypted {
		logger.Info("Device already carries an encrypted superblock", "device", w.Req.Device, "version", version)
		return job.CodeDeviceEncrypted
	}

	mounted, err := w.Monitor.IsMounted(w.Req.Device)
	if err != nil {
		logger.Error(err, "Could not determine mount state")
		return job.CodeParamsInvalid
	}
	if mounted {
		logger.Info("Device is mounted, cannot encrypt in place", "device", w.Req.Device)
		return job.CodeDeviceMounted
	}
	return job.CodeSuccess
}

// setupHeader stages a detached header, enrolls keyslots, initializes the
// data-shifting reencryption and applies the header to the device. Any
// failure after the temp header exists rolls the filesystem back.
func (w *Prepare) setupHeader(logger klog.Logger) (code job.Code) {
	tag := deviceTag(w.Req.Device)
	headerPath := "/tmp/" + tag + "_luks2_pre_enc"

	fd, err := unix.Open(headerPath, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY, 0600)
	if err != nil {
		logger.Error(err, "Could not create header staging file", "path", headerPath)
		return job.CodeOpenFile
	}
	if err := unix.Fallocate(fd, 0, 0, headerSizeBytes); err != nil {
		unix.Close(fd)
		os.Remove(headerPath)
		logger.Error(err, "Could not allocate header staging file", "path", headerPath)
		return job.CodeHeaderCreate
	}
	unix.Close(fd)

	defer func() {
		if !code.OK() {
			os.Remove(headerPath)
			if err := w.Resizer.Expand(w.Req.Device); err != nil {
				logger.Error(err, "Rollback filesystem expansion failed", "device", w.Req.Device)
			}
		}
	}()

	if err := w.Resizer.Shrink(w.Req.Device); err != nil {
		logger.Error(err, "Could not shrink filesystem", "device", w.Req.Device)
		return job.CodeResizeFailed
	}

	cipher, cipherMode, bits := parseCipher(w.Req.Cipher)
	slot, err := w.Engine.Format(w.Req.Device, crypt.FormatParams{
		Cipher:            cipher,
		CipherMode:        cipherMode,
		KeyBits:           bits,
		Header:            headerPath,
		DataOffsetSectors: dataOffsetSectors,
		Passphrase:        w.Req.Passphrase,
	})
	if err != nil {
		logger.Error(err, "Header format failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	w.PassSlot = slot

	w.RecoverySlot = -1
	if w.Req.RecoveryExportPath != "" {
		recKey, expErr := ExportRecoveryKey(w.Req.RecoveryExportPath, w.Req.Device)
		if expErr == nil {
			w.RecoverySlot, expErr = w.Engine.AddKeyslot(w.Req.Device, headerPath, w.Req.Passphrase, recKey)
		}
		if expErr != nil {
			if w.RecoveryPolicy == RecoveryKeyRequired {
				logger.Error(expErr, "Recovery key enrollment failed")
				return job.CodeAddKeyslot
			}
			logger.Error(expErr, "Recovery key enrollment failed, continuing without one")
			w.RecoverySlot = -1
		}
	}

	err = w.Engine.ReencryptInit(w.Req.Device, crypt.ReencryptParams{
		Mode:         crypt.ModeEncrypt,
		Direction:    crypt.DirectionBackward,
		Resilience:   "datashift",
		DataShiftKiB: dataShiftKiB,
		Header:       headerPath,
		Passphrase:   w.Req.Passphrase,
	})
	if err != nil {
		logger.Error(err, "Reencryption initialization failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}

	// activate temporarily so the filesystem can grow into the space the
	// data shift freed
	active := "dm-" + tag
	if err := w.Engine.Activate(w.Req.Device, active, w.Req.Passphrase, headerPath); err != nil {
		logger.Error(err, "Temporary activation failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	if err := w.Resizer.Expand("/dev/mapper/" + active); err != nil {
		logger.Error(err, "Could not expand filesystem on mapping", "mapping", active)
	}
	if err := w.Engine.Deactivate(active); err != nil {
		logger.Error(err, "Deactivation failed", "mapping", active)
		return job.CodeOf(err)
	}

	if err := w.Engine.HeaderRestore(w.Req.Device, headerPath); err != nil {
		logger.Error(err, "Could not apply staged header to device", "device", w.Req.Device)
		return job.CodeHeaderApply
	}
	os.Remove(headerPath)
	logger.Info("Encryption staged", "device", w.Req.Device, "passphraseSlot", w.PassSlot, "recoverySlot", w.RecoverySlot)
	return job.CodeSuccess
}
