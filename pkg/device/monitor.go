package device

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
	mountutils "k8s.io/mount-utils"
	k8sexec "k8s.io/utils/exec"
)

// Properties are the identification fields of a block device's superblock.
type Properties struct {
	// IDType is the detected superblock type, e.g. "ext4" or "crypto_LUKS".
	IDType string
	// IDVersion is the superblock format version, e.g. "2" for LUKS2.
	IDVersion string
	UUID      string
	Label     string
}

// Info describes one enumerated block device.
type Info struct {
	Path       string
	UUID       string
	FSType     string
	MountPoint string
}

// Monitor is the block-device capability the lifecycle code consumes.
type Monitor interface {
	// List enumerates the block devices of the machine.
	List() ([]Info, error)
	// Resolve maps a source descriptor (a device path or "UUID=<uuid>") to
	// a device, failing if no live device matches.
	Resolve(source string) (Info, error)
	// IsBlockDevice reports whether path is a block special file.
	IsBlockDevice(path string) (bool, error)
	// IsMounted reports whether the device is mounted anywhere.
	IsMounted(device string) (bool, error)
	// IsEncrypted reports whether the device carries an encrypted
	// superblock.
	IsEncrypted(device string) (bool, error)
	// Properties probes the device superblock.
	Properties(device string) (Properties, error)
}

// SystemMonitor implements Monitor with blkid/lsblk probing and the system
// mount table.
type SystemMonitor struct {
	exec    k8sexec.Interface
	mounter mountutils.Interface
}

func NewSystemMonitor(exec k8sexec.Interface) *SystemMonitor {
	return &SystemMonitor{
		exec:    exec,
		mounter: mountutils.New(""),
	}
}

var _ Monitor = &SystemMonitor{}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Path       string        `json:"path"`
	UUID       string        `json:"uuid"`
	FSType     string        `json:"fstype"`
	MountPoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

func (m *SystemMonitor) List() ([]Info, error) {
	out, err := m.exec.Command("lsblk", "-J", "-p", "-o", "PATH,UUID,FSTYPE,MOUNTPOINT").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("lsblk failed: %v, output: %s", err, out)
	}
	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("could not parse lsblk output: %w", err)
	}
	var infos []Info
	var collect func(devs []lsblkDevice)
	collect = func(devs []lsblkDevice) {
		for _, d := range devs {
			infos = append(infos, Info{
				Path:       d.Path,
				UUID:       d.UUID,
				FSType:     d.FSType,
				MountPoint: d.MountPoint,
			})
			collect(d.Children)
		}
	}
	collect(parsed.BlockDevices)
	return infos, nil
}

func (m *SystemMonitor) Resolve(source string) (Info, error) {
	devs, err := m.List()
	if err != nil {
		return Info{}, err
	}
	uuid, byUUID := strings.CutPrefix(source, "UUID=")
	for _, d := range devs {
		if byUUID && d.UUID == uuid {
			return d, nil
		}
		if !byUUID && d.Path == source {
			return d, nil
		}
	}
	return Info{}, fmt.Errorf("no device matches %q", source)
}

func (m *SystemMonitor) IsBlockDevice(path string) (bool, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return false, err
	}
	return (stat.Mode & unix.S_IFMT) == unix.S_IFBLK, nil
}

func (m *SystemMonitor) IsMounted(device string) (bool, error) {
	mounts, err := m.mounter.List()
	if err != nil {
		return false, fmt.Errorf("could not list mounts: %w", err)
	}
	for _, mp := range mounts {
		if mp.Device == device {
			return true, nil
		}
	}
	return false, nil
}

func (m *SystemMonitor) IsEncrypted(device string) (bool, error) {
	props, err := m.Properties(device)
	if err != nil {
		return false, err
	}
	return strings.Contains(props.IDType, "crypto"), nil
}

func (m *SystemMonitor) Properties(device string) (Properties, error) {
	out, err := m.exec.Command("blkid", "-p", "-o", "export", device).CombinedOutput()
	if err != nil {
		// blkid exits non-zero for an unrecognized superblock, which is a
		// valid answer, not a failure
		klog.V(5).InfoS("blkid found no superblock", "device", device, "err", err)
		return Properties{}, nil
	}
	return parseBlkidExport(string(out)), nil
}

func parseBlkidExport(out string) Properties {
	props := Properties{}
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "TYPE":
			props.IDType = value
		case "VERSION":
			props.IDVersion = value
		case "UUID":
			props.UUID = value
		case "LABEL":
			props.Label = value
		}
	}
	return props
}
