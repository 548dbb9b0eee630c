package systab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskcrypt/diskcryptd/pkg/device"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readTable(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSweepCrypttab(t *testing.T) {
	monitor := device.NewFakeMonitor()
	monitor.Devices = []device.Info{
		{Path: "/dev/sdb1", UUID: "1111-2222"},
		{Path: "/dev/sdc1", UUID: "3333-4444"},
	}
	monitor.Props["/dev/sdb1"] = device.Properties{IDType: "crypto_LUKS", IDVersion: "2"}
	// /dev/sdc1 resolves but is plaintext now

	crypttab := writeTable(t, ""+
		"# managed by the installer\n"+
		"dm-sdb1\tUUID=1111-2222\tnone\tnone\n"+
		"dm-sdc1\tUUID=3333-4444\tnone\tnone\n"+
		"dm-gone\tUUID=dead-beef\tnone\tnone\n"+
		"dm-detached\t/dev/sdz9\tnone\tnone\n"+
		"broken-line\n")

	s := NewSynchronizer(crypttab, "", monitor)
	changed, err := s.SweepCrypttab()
	require.NoError(t, err)
	assert.True(t, changed)

	// comments verbatim, the live encrypted entry and the detached plain
	// path kept, the decrypted, stale-UUID and unparsable lines dropped
	assert.Equal(t, ""+
		"# managed by the installer\n"+
		"dm-sdb1\tUUID=1111-2222\tnone\tnone\n"+
		"dm-detached\t/dev/sdz9\tnone\tnone\n",
		readTable(t, crypttab))
}

func TestSweepCrypttabNoChange(t *testing.T) {
	monitor := device.NewFakeMonitor()
	monitor.Devices = []device.Info{{Path: "/dev/sdb1", UUID: "1111-2222"}}
	monitor.Props["/dev/sdb1"] = device.Properties{IDType: "crypto_LUKS"}

	content := "dm-sdb1\tUUID=1111-2222\tnone\tnone\n"
	crypttab := writeTable(t, content)

	changed, err := NewSynchronizer(crypttab, "", monitor).SweepCrypttab()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, content, readTable(t, crypttab))
}

func TestSetFstabTimeout(t *testing.T) {
	fstab := writeTable(t, ""+
		"# /etc/fstab\n"+
		"UUID=aaaa-bbbb\t/\text4\terrors=remount-ro\t0\t1\n"+
		"UUID=1111-2222\t/data\text4\tdefaults\t0\t2\n")

	s := NewSynchronizer("", fstab, device.NewFakeMonitor())
	require.NoError(t, s.SetFstabTimeout("/dev/sdb1", "1111-2222"))

	got := readTable(t, fstab)
	assert.Contains(t, got, "UUID=1111-2222\t/data\text4\tdefaults,x-systemd.device-timeout=0\t0\t2")
	// untouched lines stay byte-identical
	assert.Contains(t, got, "UUID=aaaa-bbbb\t/\text4\terrors=remount-ro\t0\t1\n")

	// a second application changes nothing
	require.NoError(t, s.SetFstabTimeout("/dev/sdb1", "1111-2222"))
	assert.Equal(t, got, readTable(t, fstab))
}

func TestSetFstabTimeoutByPath(t *testing.T) {
	fstab := writeTable(t, "/dev/sdb1\t/data\text4\tdefaults\t0\t2\n")

	s := NewSynchronizer("", fstab, device.NewFakeMonitor())
	require.NoError(t, s.SetFstabTimeout("/dev/sdb1", "1111-2222"))
	assert.Equal(t, "/dev/sdb1\t/data\text4\tdefaults,x-systemd.device-timeout=0\t0\t2\n", readTable(t, fstab))
}

func TestSetFstabTimeoutNoMatch(t *testing.T) {
	content := "" +
		"UUID=aaaa-bbbb / ext4 errors=remount-ro 0 1\n" +
		"UUID=1111-2222 /data ext4\n" // not a 6-field line
	fstab := writeTable(t, content)

	s := NewSynchronizer("", fstab, device.NewFakeMonitor())
	require.NoError(t, s.SetFstabTimeout("/dev/sdb1", "1111-2222"))
	assert.Equal(t, content, readTable(t, fstab))
}

func TestAddCrypttabTPMHint(t *testing.T) {
	crypttab := writeTable(t, "dm-sdb1\tUUID=1111-2222\tnone\tnone\n")

	s := NewSynchronizer(crypttab, "", device.NewFakeMonitor())
	require.NoError(t, s.AddCrypttabTPMHint("UUID=1111-2222"))
	assert.Equal(t, "dm-sdb1\tUUID=1111-2222\tnone\tnone,tpm2-device=auto\n", readTable(t, crypttab))

	// idempotent
	require.NoError(t, s.AddCrypttabTPMHint("UUID=1111-2222"))
	assert.Equal(t, "dm-sdb1\tUUID=1111-2222\tnone\tnone,tpm2-device=auto\n", readTable(t, crypttab))
}

func TestAddCrypttabTPMHintShortLine(t *testing.T) {
	crypttab := writeTable(t, "dm-sdb1\tUUID=1111-2222\n")

	s := NewSynchronizer(crypttab, "", device.NewFakeMonitor())
	require.NoError(t, s.AddCrypttabTPMHint("UUID=1111-2222"))
	assert.Equal(t, "dm-sdb1\tUUID=1111-2222\tnone\ttpm2-device=auto\n", readTable(t, crypttab))
}
