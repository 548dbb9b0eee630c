package worker

import (
	"context"
	"os"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
)

// Decrypt reverts a device to plaintext, or persists a decrypt descriptor
// when the work must wait for the next boot.
type Decrypt struct {
	Req     DecryptRequest
	Engine  crypt.Engine
	Resizer fsresize.Resizer
	Store   *jobstore.Store

	// OnProgress receives the decryption fraction in [0,1].
	OnProgress func(device string, fraction float64)
}

var _ job.Runner = &Decrypt{}

func (w *Decrypt) Run(ctx context.Context) job.Code {
	logger := klog.FromContext(ctx)

	if w.Req.InitOnly {
		cfg := &jobstore.DecryptConfig{
			Device:     "UUID=" + w.Req.UUID,
			DevicePath: w.Req.Device,
		}
		if err := w.Store.WriteDecrypt(cfg); err != nil {
			logger.Error(err, "Could not persist decryption parameters")
			return job.CodeOpenFile
		}
		return job.CodeRebootRequired
	}

	headerPath := "/tmp/dm_header_" + deviceTag(w.Req.Device)
	defer os.Remove(headerPath)

	if err := w.Engine.HeaderBackup(w.Req.Device, headerPath); err != nil {
		logger.Error(err, "Header backup failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}

	flags, err := w.Engine.PersistentFlags(w.Req.Device)
	if err != nil {
		logger.Error(err, "Could not read requirement flags", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	if flags&(crypt.RequirementOfflineReencrypt|crypt.RequirementOnlineReencrypt) != 0 {
		logger.Info("Device is still being reencrypted, refusing to decrypt", "device", w.Req.Device, "flags", flags)
		return job.CodeWrongFlags
	}

	err = w.Engine.ReencryptRun(w.Req.Device, crypt.ReencryptParams{
		Mode:       crypt.ModeDecrypt,
		Direction:  crypt.DirectionBackward,
		Resilience: "checksum",
		Header:     headerPath,
		Passphrase: w.Req.Passphrase,
	}, w.progress())
	if err != nil {
		logger.Error(err, "Decryption failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}

	if err := w.Resizer.RecoverSuperblock(w.Req.Device); err != nil {
		logger.Error(err, "Could not recover filesystem state", "device", w.Req.Device)
		return job.CodeResizeFailed
	}
	return job.CodeSuccess
}

func (w *Decrypt) progress() crypt.ProgressFunc {
	if w.OnProgress == nil {
		return nil
	}
	device := w.Req.Device
	return func(deviceBytes, deviceSize uint64) {
		w.OnProgress(device, float64(deviceBytes)/float64(deviceSize))
	}
}
