package worker

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
)

// Resume continues an interrupted online reencryption from its last
// persisted checkpoint. It refuses to run unless the online requirement
// flag is set; offline requirements are never resumed automatically.
type Resume struct {
	Req     ResumeRequest
	Engine  crypt.Engine
	Resizer fsresize.Resizer

	// OnProgress receives the reencryption fraction in [0,1].
	OnProgress func(device string, fraction float64)
}

var _ job.Runner = &Resume{}

func (w *Resume) Run(ctx context.Context) job.Code {
	logger := klog.FromContext(ctx)

	flags, err := w.Engine.PersistentFlags(w.Req.Device)
	if err != nil {
		logger.Error(err, "Could not read requirement flags", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	if flags&crypt.RequirementOnlineReencrypt == 0 {
		logger.Info("Device has no pending online reencryption", "device", w.Req.Device, "flags", flags)
		return job.CodeWrongFlags
	}

	err = w.Engine.ReencryptRun(w.Req.Device, crypt.ReencryptParams{
		Mode:       crypt.ModeReencrypt,
		Direction:  crypt.DirectionForward,
		Resilience: "checksum",
		ResumeOnly: true,
		ActiveName: w.Req.ClearDev,
		Passphrase: w.Req.Passphrase,
	}, w.progress())
	if err != nil {
		logger.Error(err, "Resumed reencryption failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}

	if !w.Req.ExpandFS {
		return job.CodeSuccess
	}

	active := "dm-" + deviceTag(w.Req.Device)
	if err := w.Engine.Activate(w.Req.Device, active, w.Req.Passphrase, ""); err != nil {
		logger.Error(err, "Activation for filesystem expansion failed", "device", w.Req.Device)
		return job.CodeOf(err)
	}
	if err := w.Resizer.Expand("/dev/mapper/" + active); err != nil {
		logger.Error(err, "Could not expand filesystem on mapping", "mapping", active)
	}
	if err := w.Engine.Deactivate(active); err != nil {
		logger.Error(err, "Deactivation failed", "mapping", active)
		return job.CodeOf(err)
	}
	return job.CodeSuccess
}

func (w *Resume) progress() crypt.ProgressFunc {
	if w.OnProgress == nil {
		return nil
	}
	device := w.Req.Device
	return func(deviceBytes, deviceSize uint64) {
		w.OnProgress(device, float64(deviceBytes)/float64(deviceSize))
	}
}
