package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/device"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
	"github.com/diskcrypt/diskcryptd/pkg/systab"
	"github.com/diskcrypt/diskcryptd/pkg/tpm"
	"github.com/diskcrypt/diskcryptd/pkg/worker"
)

// Options configures a Manager. The zero value is completed with the
// system defaults by New.
type Options struct {
	// StoreDir holds the persisted job descriptors.
	StoreDir     string
	CrypttabPath string
	FstabPath    string
	// DisabledMountPoints lists mount points whose devices must never be
	// encrypted.
	DisabledMountPoints []string
	RecoveryKeyPolicy   worker.RecoveryKeyPolicy
	// EventBuffer sizes the event channel.
	EventBuffer int
	// ParamsPollInterval is the delay between parameter polls while a
	// resumed encryption waits for its credentials.
	ParamsPollInterval time.Duration
}

func (o *Options) complete() {
	if o.StoreDir == "" {
		o.StoreDir = jobstore.DefaultDir
	}
	if o.CrypttabPath == "" {
		o.CrypttabPath = systab.DefaultCrypttab
	}
	if o.FstabPath == "" {
		o.FstabPath = systab.DefaultFstab
	}
	if o.DisabledMountPoints == nil {
		o.DisabledMountPoints = []string{"/", "/boot", "/boot/efi"}
	}
	if o.ParamsPollInterval <= 0 {
		o.ParamsPollInterval = 3 * time.Second
	}
}

// EncryptParams is the credential set an external caller supplies to let a
// resumed encryption finish.
type EncryptParams struct {
	Device     string
	Passphrase string
	// TPMToken, when set, is attached to the device during finalization.
	TPMToken string
}

// Manager owns the encryption lifecycle: it serializes jobs per device,
// detects resumable work at startup and drives it to completion, and
// publishes progress and results on a single event channel.
type Manager struct {
	opts Options

	engine   crypt.Engine
	monitor  device.Monitor
	resizer  fsresize.Resizer
	resolver *crypt.StatusResolver
	sealer   tpm.Sealer
	store    *jobstore.Store
	tables   *systab.Synchronizer
	events   *job.Events

	mu       sync.Mutex
	state    State
	inflight map[string]string
	resume   *resumeState
}

// New builds a Manager around the given engine and system accessors.
// sealer may be nil when no TPM is available.
func New(engine crypt.Engine, monitor device.Monitor, resizer fsresize.Resizer, sealer tpm.Sealer, opts Options) *Manager {
	opts.complete()
	return &Manager{
		opts:     opts,
		engine:   engine,
		monitor:  monitor,
		resizer:  resizer,
		resolver: crypt.NewStatusResolver(engine, monitor),
		sealer:   sealer,
		store:    jobstore.NewStore(opts.StoreDir),
		tables:   systab.NewSynchronizer(opts.CrypttabPath, opts.FstabPath, monitor),
		events:   job.NewEvents(opts.EventBuffer),
		state:    StateIdle,
		inflight: make(map[string]string),
	}
}

// Events is the channel progress, result and need-parameters events are
// delivered on. Results arrive exactly once per job.
func (m *Manager) Events() <-chan job.Event { return m.events.C() }

// State reports the cross-reboot job phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()
	klog.InfoS("Lifecycle state changed", "from", old, "to", s)
}

// Run performs startup recovery: the crypttab sweep runs in the
// background, a persisted encryption descriptor is checked against the
// device state and, if the device carries an unfinished online
// reencryption, resumed. Run returns immediately; the resumed job reports
// through the event channel.
func (m *Manager) Run(ctx context.Context) {
	go func() {
		if changed, err := m.tables.SweepCrypttab(); err != nil {
			klog.ErrorS(err, "Crypttab sweep failed")
		} else if changed {
			klog.InfoS("Removed stale crypttab entries")
		}
	}()

	if cfg, ok := m.store.ReadDecrypt(); ok {
		klog.InfoS("Found persisted decryption descriptor, awaiting decrypt request", "device", cfg.DevicePath)
	}

	cfg, ok := m.store.ReadEncrypt()
	if !ok {
		return
	}
	m.setState(StateAwaitingReboot)

	status, err := m.resolver.ResolveReencryptStatus(cfg.DevicePath)
	if err != nil {
		klog.ErrorS(err, "Could not resolve reencryption status, leaving descriptor in place", "device", cfg.DevicePath)
		return
	}
	if status != crypt.StatusOnlineUnfinished {
		klog.InfoS("Persisted encryption not resumable yet", "device", cfg.DevicePath, "status", status)
		return
	}

	m.setState(StateResuming)
	rs := newResumeState(cfg)
	m.mu.Lock()
	m.resume = rs
	m.mu.Unlock()
	go m.runResume(ctx, rs)
}

// SetEncryptParams hands the credentials for a resumed encryption to the
// waiting resume loop. Parameters for a device other than the persisted
// one are kept and simply never match.
func (m *Manager) SetEncryptParams(params EncryptParams) error {
	m.mu.Lock()
	rs := m.resume
	m.mu.Unlock()
	if rs == nil {
		return fmt.Errorf("no pending encryption is waiting for parameters")
	}
	rs.setParams(params)
	return nil
}

// PrepareEncryptDisk starts encryption of a device and returns the job id.
// With InitOnly only the parameters are persisted; otherwise the header is
// staged and the reencryption runs to completion in the background.
func (m *Manager) PrepareEncryptDisk(ctx context.Context, req worker.PrepareRequest) (string, error) {
	if req.Device == "" {
		return "", fmt.Errorf("device is required")
	}
	if !req.InitOnly && req.Passphrase == "" {
		return "", fmt.Errorf("passphrase is required for immediate encryption")
	}
	if req.TPMToken == "" && req.Mode != worker.ModePin && m.sealer != nil {
		blob, err := m.sealer.SealToken(ctx, req.Device, req.Mode == worker.ModeTPMPin)
		if err != nil {
			return "", fmt.Errorf("could not seal TPM token: %w", err)
		}
		req.TPMToken = blob
	}

	id, err := m.begin(req.Device)
	if err != nil {
		return "", err
	}
	prep := &worker.Prepare{
		Req:                 req,
		Engine:              m.engine,
		Monitor:             m.monitor,
		Resolver:            m.resolver,
		Resizer:             m.resizer,
		Store:               m.store,
		Tables:              m.tables,
		DisabledMountPoints: m.opts.DisabledMountPoints,
		RecoveryPolicy:      m.opts.RecoveryKeyPolicy,
	}
	jb := job.New(id, job.OpPrepare, req.Device, prep)
	jb.Start(ctx, m.events, req.DeviceName)
	go func() {
		code := jb.Wait()
		m.release(req.Device)
		if !code.OK() {
			return
		}
		if req.InitOnly {
			m.setState(StateAwaitingReboot)
			return
		}
		m.runImmediateEncrypt(ctx, req, prep)
	}()
	return id, nil
}

// runImmediateEncrypt drives the reencryption a successful immediate
// Prepare initialized, then attaches the tokens to the finished device.
func (m *Manager) runImmediateEncrypt(ctx context.Context, req worker.PrepareRequest, prep *worker.Prepare) {
	id, err := m.begin(req.Device)
	if err != nil {
		klog.ErrorS(err, "Could not start reencryption after staging", "device", req.Device)
		return
	}
	defer m.release(req.Device)

	rw := &worker.Resume{
		Req: worker.ResumeRequest{
			Device:     req.Device,
			Passphrase: req.Passphrase,
		},
		Engine:     m.engine,
		Resizer:    m.resizer,
		OnProgress: m.progressFunc(id),
	}
	jb := job.New(id, job.OpEncrypt, req.Device, rw)
	jb.Start(ctx, m.events, req.DeviceName)
	if code := jb.Wait(); !code.OK() {
		return
	}

	if req.TPMToken != "" {
		if err := m.attachToken(req.Device, req.TPMToken, prep.PassSlot); err != nil {
			klog.ErrorS(err, "Could not attach TPM token", "device", req.Device)
		}
	}
	if prep.RecoverySlot >= 0 {
		if err := m.attachRecoveryToken(req.Device, prep.RecoverySlot); err != nil {
			klog.ErrorS(err, "Could not attach recovery token", "device", req.Device)
		}
	}
	if req.DeviceName != "" {
		if err := m.engine.SetLabel(req.Device, req.DeviceName); err != nil {
			klog.ErrorS(err, "Could not set device label", "device", req.Device)
		}
	}
}

// DecryptDisk reverts a device to plaintext and returns the job id. With
// InitOnly the request is persisted and the job finishes with
// CodeRebootRequired.
func (m *Manager) DecryptDisk(ctx context.Context, req worker.DecryptRequest) (string, error) {
	if req.Device == "" {
		return "", fmt.Errorf("device is required")
	}
	if !req.InitOnly && req.Passphrase == "" {
		return "", fmt.Errorf("passphrase is required for immediate decryption")
	}
	id, err := m.begin(req.Device)
	if err != nil {
		return "", err
	}
	w := &worker.Decrypt{
		Req:        req,
		Engine:     m.engine,
		Resizer:    m.resizer,
		Store:      m.store,
		OnProgress: m.progressFunc(id),
	}
	jb := job.New(id, job.OpDecrypt, req.Device, w)
	jb.Start(ctx, m.events, req.DeviceName)
	go func() {
		code := jb.Wait()
		m.release(req.Device)
		if code.OK() && !req.InitOnly {
			// a descriptor persisted by an earlier deferred request is
			// satisfied by this decryption
			m.store.RemoveDecrypt()
		}
	}()
	return id, nil
}

// ChangePassphrase rotates a device credential and returns the job id.
func (m *Manager) ChangePassphrase(ctx context.Context, req worker.ChangePassphraseRequest) (string, error) {
	if req.Device == "" || req.NewPassphrase == "" {
		return "", fmt.Errorf("device and new passphrase are required")
	}
	id, err := m.begin(req.Device)
	if err != nil {
		return "", err
	}
	w := &worker.ChangePassphrase{
		Req:    req,
		Engine: m.engine,
	}
	jb := job.New(id, job.OpChangePassphrase, req.Device, w)
	jb.Start(ctx, m.events, req.DeviceName)
	go func() {
		jb.Wait()
		m.release(req.Device)
	}()
	return id, nil
}

// QueryTPMToken returns the TPM token JSON stored on the device, with its
// token index inserted, or "" when the device carries none.
func (m *Manager) QueryTPMToken(device string) (string, error) {
	tokens, err := m.engine.Tokens(device)
	if err != nil {
		return "", err
	}
	best := -1
	var bestRaw string
	for idx, raw := range tokens {
		token, err := tpm.ParseToken([]byte(raw))
		if err != nil || token.Type != tpm.TokenTypeTPM2 {
			continue
		}
		if best < 0 || idx < best {
			best, bestRaw = idx, raw
		}
	}
	if best < 0 {
		return "", nil
	}
	token, err := tpm.ParseToken([]byte(bestRaw))
	if err != nil {
		return "", err
	}
	token.Index = best
	data, err := token.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Manager) attachToken(dev, tokenJSON string, slot int) error {
	token, err := tpm.ParseToken([]byte(tokenJSON))
	if err != nil {
		return err
	}
	token.SetKeyslots(slot)
	data, err := token.MarshalJSON()
	if err != nil {
		return err
	}
	return m.engine.TokenSet(dev, token.Index, string(data))
}

func (m *Manager) attachRecoveryToken(dev string, slot int) error {
	data, err := tpm.NewRecoveryToken(slot).MarshalJSON()
	if err != nil {
		return err
	}
	return m.engine.TokenSet(dev, -1, string(data))
}

// begin reserves the device for a new job.
func (m *Manager) begin(dev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, busy := m.inflight[dev]; busy {
		return "", fmt.Errorf("device %s is busy with job %s", dev, id)
	}
	id := job.NewID()
	m.inflight[dev] = id
	return id, nil
}

func (m *Manager) release(dev string) {
	m.mu.Lock()
	delete(m.inflight, dev)
	m.mu.Unlock()
}

func (m *Manager) progressFunc(jobID string) func(device string, fraction float64) {
	return func(dev string, fraction float64) {
		m.events.PublishProgress(job.Progress{JobID: jobID, Device: dev, Fraction: fraction})
	}
}
