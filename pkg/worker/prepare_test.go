package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/device"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
	"github.com/diskcrypt/diskcryptd/pkg/systab"
)

type prepareFixture struct {
	engine  *crypt.FakeEngine
	monitor *device.FakeMonitor
	resizer *fsresize.FakeResizer
	store   *jobstore.Store
	tables  *systab.Synchronizer
	fstab   string
}

func newPrepareFixture(t *testing.T, devicePath string) *prepareFixture {
	t.Helper()
	fstab := filepath.Join(t.TempDir(), "fstab")
	require.NoError(t, os.WriteFile(fstab, []byte("UUID=1111-2222\t/data\text4\tdefaults\t0\t2\n"), 0644))

	monitor := device.NewFakeMonitor()
	monitor.Blocks[devicePath] = true

	return &prepareFixture{
		engine:  crypt.NewFakeEngine(),
		monitor: monitor,
		resizer: fsresize.NewFakeResizer(),
		store:   jobstore.NewStore(t.TempDir()),
		tables:  systab.NewSynchronizer(filepath.Join(t.TempDir(), "crypttab"), fstab, monitor),
		fstab:   fstab,
	}
}

func (f *prepareFixture) worker(req PrepareRequest) *Prepare {
	return &Prepare{
		Req:                 req,
		Engine:              f.engine,
		Monitor:             f.monitor,
		Resolver:            crypt.NewStatusResolver(f.engine, f.monitor),
		Resizer:             f.resizer,
		Store:               f.store,
		Tables:              f.tables,
		DisabledMountPoints: []string{"/", "/boot", "/boot/efi"},
	}
}

func TestPrepareRejectsDisabledMountPoint(t *testing.T) {
	f := newPrepareFixture(t, "/dev/prepboot1")
	w := f.worker(PrepareRequest{
		Device:     "/dev/prepboot1",
		MountPoint: "/boot",
		InitOnly:   true,
	})

	code := w.Run(context.Background())
	assert.Equal(t, job.CodeDisabledMountPoint, code)
	// rejected before touching the engine or the descriptor store
	assert.Empty(t, f.engine.Calls)
	_, ok := f.store.ReadEncrypt()
	assert.False(t, ok)
}

func TestPrepareInitOnlyPersists(t *testing.T) {
	f := newPrepareFixture(t, "/dev/prepinit1")
	recDir := t.TempDir()
	w := f.worker(PrepareRequest{
		Device:             "/dev/prepinit1",
		DeviceName:         "Data",
		UUID:               "1111-2222",
		MountPoint:         "/data",
		Cipher:             "aes",
		Mode:               ModeTPMPin,
		RecoveryExportPath: recDir,
		InitOnly:           true,
	})

	code := w.Run(context.Background())
	require.Equal(t, job.CodeSuccess, code)

	cfg, ok := f.store.ReadEncrypt()
	require.True(t, ok)
	assert.Equal(t, "dm-prepinit1", cfg.ClearDev)
	assert.Equal(t, "UUID=1111-2222", cfg.Device)
	assert.Equal(t, "/dev/prepinit1", cfg.DevicePath)
	assert.Equal(t, "Data", cfg.DeviceName)
	assert.Equal(t, "/data", cfg.MountPoint)
	assert.Equal(t, "aes-xts-plain64", cfg.Cipher)
	assert.Equal(t, "256", cfg.KeySize)
	assert.Equal(t, "tpm-pin", cfg.Mode)
	assert.Equal(t, filepath.Join(recDir, "prepinit1_recovery_key.txt"), cfg.RecoveryPath)

	// the mount table entry got its boot timeout suppressed
	data, err := os.ReadFile(f.fstab)
	require.NoError(t, err)
	assert.Contains(t, string(data), "defaults,x-systemd.device-timeout=0")

	// no engine work happens before the reboot
	assert.Empty(t, f.engine.Calls)
}

func TestPrepareValidation(t *testing.T) {
	t.Run("not a block device", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/prepval1")
		w := f.worker(PrepareRequest{Device: "/dev/other", Passphrase: "pw"})
		assert.Equal(t, job.CodeParamsInvalid, w.Run(context.Background()))
	})

	t.Run("already encrypted", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/prepval2")
		f.monitor.Props["/dev/prepval2"] = device.Properties{IDType: "crypto_LUKS", IDVersion: "2"}
		w := f.worker(PrepareRequest{Device: "/dev/prepval2", Passphrase: "pw"})
		assert.Equal(t, job.CodeDeviceEncrypted, w.Run(context.Background()))
	})

	t.Run("mounted", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/prepval3")
		f.monitor.Mounted["/dev/prepval3"] = true
		w := f.worker(PrepareRequest{Device: "/dev/prepval3", Passphrase: "pw"})
		assert.Equal(t, job.CodeDeviceMounted, w.Run(context.Background()))
	})

	t.Run("missing recovery export path", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/prepval4")
		w := f.worker(PrepareRequest{
			Device:             "/dev/prepval4",
			Passphrase:         "pw",
			RecoveryExportPath: "/does/not/exist",
		})
		assert.Equal(t, job.CodeParamsInvalid, w.Run(context.Background()))
	})
}

func TestPrepareImmediate(t *testing.T) {
	f := newPrepareFixture(t, "/dev/prepnow1")
	t.Cleanup(func() { os.Remove("/tmp/prepnow1_luks2_pre_enc") })
	recDir := t.TempDir()
	w := f.worker(PrepareRequest{
		Device:             "/dev/prepnow1",
		DeviceName:         "Data",
		UUID:               "1111-2222",
		Cipher:             "aes",
		Passphrase:         "secret",
		RecoveryExportPath: recDir,
	})

	code := w.Run(context.Background())
	require.Equal(t, job.CodeSuccess, code)

	assert.Equal(t, 0, w.PassSlot)
	assert.Equal(t, 1, w.RecoverySlot)
	assert.Equal(t, []string{"Format", "AddKeyslot", "ReencryptInit", "Activate", "Deactivate", "HeaderRestore"}, f.engine.Calls)
	assert.Equal(t, []string{"Shrink", "Expand"}, f.resizer.Calls)

	// the staged header file is gone after it was applied
	_, err := os.Stat("/tmp/prepnow1_luks2_pre_enc")
	assert.True(t, os.IsNotExist(err))

	// the recovery key was exported for the user
	key, err := os.ReadFile(filepath.Join(recDir, "prepnow1_recovery_key.txt"))
	require.NoError(t, err)
	assert.Len(t, string(key), 24)
}

func TestPrepareRollsBackOnFormatFailure(t *testing.T) {
	f := newPrepareFixture(t, "/dev/preproll1")
	t.Cleanup(func() { os.Remove("/tmp/preproll1_luks2_pre_enc") })
	f.engine.FailWith["Format"] = crypt.ErrFormat
	w := f.worker(PrepareRequest{Device: "/dev/preproll1", Passphrase: "secret"})

	code := w.Run(context.Background())
	assert.Equal(t, job.CodeEngineFormat, code)

	// the staging file is removed and the filesystem grown back
	_, err := os.Stat("/tmp/preproll1_luks2_pre_enc")
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"Shrink", "Expand"}, f.resizer.Calls)
}

func TestPrepareRecoveryKeyPolicy(t *testing.T) {
	t.Run("best effort continues", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/preprec1")
		t.Cleanup(func() { os.Remove("/tmp/preprec1_luks2_pre_enc") })
		f.engine.FailWith["AddKeyslot"] = crypt.ErrAddKeyslot
		w := f.worker(PrepareRequest{
			Device:             "/dev/preprec1",
			Passphrase:         "secret",
			RecoveryExportPath: t.TempDir(),
		})

		require.Equal(t, job.CodeSuccess, w.Run(context.Background()))
		assert.Equal(t, -1, w.RecoverySlot)
	})

	t.Run("required aborts", func(t *testing.T) {
		f := newPrepareFixture(t, "/dev/preprec2")
		t.Cleanup(func() { os.Remove("/tmp/preprec2_luks2_pre_enc") })
		f.engine.FailWith["AddKeyslot"] = crypt.ErrAddKeyslot
		w := f.worker(PrepareRequest{
			Device:             "/dev/preprec2",
			Passphrase:         "secret",
			RecoveryExportPath: t.TempDir(),
		})
		w.RecoveryPolicy = RecoveryKeyRequired

		assert.Equal(t, job.CodeAddKeyslot, w.Run(context.Background()))
	})
}
