package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
	"github.com/diskcrypt/diskcryptd/pkg/worker"
)

var errDeviceGone = errors.New("device no longer exists")

// resumeState is the single in-process handle of a resumed encryption. The
// lock guards only the parameter snapshot: the resume loop reads, the
// external setter writes.
type resumeState struct {
	cfg *jobstore.EncryptConfig

	mu     sync.RWMutex
	params *EncryptParams
}

func newResumeState(cfg *jobstore.EncryptConfig) *resumeState {
	return &resumeState{cfg: cfg}
}

func (rs *resumeState) setParams(p EncryptParams) {
	rs.mu.Lock()
	rs.params = &p
	rs.mu.Unlock()
}

// snapshot returns the parameters when they are complete and belong to the
// persisted device.
func (rs *resumeState) snapshot() (EncryptParams, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.params == nil || rs.params.Passphrase == "" {
		return EncryptParams{}, false
	}
	if rs.params.Device != rs.cfg.DevicePath && rs.params.Device != rs.cfg.Device {
		return EncryptParams{}, false
	}
	return *rs.params, true
}

// runResume drives a cross-reboot encryption to completion: wait for the
// caller's credentials, finish the reencryption with the empty staging
// credential, then finalize. One terminal Result is published either way.
func (m *Manager) runResume(ctx context.Context, rs *resumeState) {
	defer func() {
		m.mu.Lock()
		m.resume = nil
		m.mu.Unlock()
	}()

	dev := rs.cfg.DevicePath
	id, err := m.begin(dev)
	if err != nil {
		klog.ErrorS(err, "Could not reserve device for resumed encryption", "device", dev)
		return
	}
	defer m.release(dev)

	fail := func(code job.Code) {
		m.setState(StateFailed)
		m.events.Publish(job.Result{
			JobID:      id,
			Op:         job.OpEncrypt,
			Device:     dev,
			DeviceName: rs.cfg.DeviceName,
			Code:       code,
		})
	}

	params, err := m.waitForParams(ctx, rs)
	if err != nil {
		klog.ErrorS(err, "Resumed encryption abandoned", "device", dev)
		fail(job.CodeParamsInvalid)
		return
	}

	// the staged keyslot was enrolled with an empty credential; the real
	// passphrase is applied during finalization
	rw := &worker.Resume{
		Req: worker.ResumeRequest{
			Device:     dev,
			Passphrase: "",
			ClearDev:   rs.cfg.ClearDev,
			ExpandFS:   true,
		},
		Engine:     m.engine,
		Resizer:    m.resizer,
		OnProgress: m.progressFunc(id),
	}
	if code := job.Run(ctx, rw); !code.OK() {
		fail(code)
		return
	}

	m.setState(StateFinalizing)
	code := m.finalize(rs.cfg, params)
	m.setState(StateDone)
	m.events.Publish(job.Result{
		JobID:      id,
		Op:         job.OpEncrypt,
		Device:     dev,
		DeviceName: rs.cfg.DeviceName,
		Code:       code,
	})
}

// waitForParams polls until a complete, matching parameter set arrives,
// emitting a need-parameters event each round. It gives up when the device
// disappears or the context ends.
func (m *Manager) waitForParams(ctx context.Context, rs *resumeState) (EncryptParams, error) {
	var params EncryptParams
	err := wait.PollUntilContextCancel(ctx, m.opts.ParamsPollInterval, true, func(ctx context.Context) (bool, error) {
		if p, ok := rs.snapshot(); ok {
			params = p
			return true, nil
		}
		if is, err := m.monitor.IsBlockDevice(rs.cfg.DevicePath); err != nil || !is {
			return false, errDeviceGone
		}
		m.events.Publish(job.RequestParams{
			Device:     rs.cfg.DevicePath,
			DeviceName: rs.cfg.DeviceName,
		})
		return false, nil
	})
	return params, err
}

// finalize applies the credentials, tokens, label and boot table entries
// to the freshly encrypted device and removes the descriptor. The steps
// run in order but independently; the first failing code is returned, and
// later steps still run.
func (m *Manager) finalize(cfg *jobstore.EncryptConfig, params EncryptParams) job.Code {
	dev := cfg.DevicePath
	first := job.CodeSuccess
	record := func(code job.Code) {
		if first.OK() {
			first = code
		}
	}

	slot, err := m.engine.ChangeKeyslot(dev, "", params.Passphrase)
	if err != nil {
		klog.ErrorS(err, "Could not set the real passphrase", "device", dev)
		record(job.CodeOf(err))
	} else if params.TPMToken != "" {
		if err := m.attachToken(dev, params.TPMToken, slot); err != nil {
			klog.ErrorS(err, "Could not attach TPM token", "device", dev)
			record(job.CodeTokenSetFailed)
		}
	}

	if cfg.RecoveryPath != "" && err == nil {
		m.finalizeRecoveryKey(cfg, params.Passphrase, record)
	}

	if cfg.DeviceName != "" {
		if err := m.engine.SetLabel(dev, cfg.DeviceName); err != nil {
			klog.ErrorS(err, "Could not set device label", "device", dev)
		}
	}

	if params.TPMToken != "" {
		if err := m.tables.AddCrypttabTPMHint(cfg.Device); err != nil {
			klog.ErrorS(err, "Could not add crypttab TPM hint", "source", cfg.Device)
		}
	}

	m.store.RemoveEncrypt()
	return first
}

func (m *Manager) finalizeRecoveryKey(cfg *jobstore.EncryptConfig, passphrase string, record func(job.Code)) {
	dev := cfg.DevicePath
	recKey, err := worker.ExportRecoveryKey(filepath.Dir(cfg.RecoveryPath), dev)
	if err != nil {
		klog.ErrorS(err, "Could not export recovery key", "device", dev)
		if m.opts.RecoveryKeyPolicy == worker.RecoveryKeyRequired {
			record(job.CodeAddKeyslot)
		}
		return
	}
	slot, err := m.engine.AddKeyslot(dev, "", passphrase, recKey)
	if err != nil {
		klog.ErrorS(err, "Could not enroll recovery key", "device", dev)
		record(job.CodeAddKeyslot)
		return
	}
	if err := m.attachRecoveryToken(dev, slot); err != nil {
		klog.ErrorS(err, "Could not attach recovery token", "device", dev)
		record(job.CodeTokenSetFailed)
	}
}
