package systab

import (
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/pkg/device"
	"github.com/diskcrypt/diskcryptd/pkg/util"
)

const (
	DefaultCrypttab = "/etc/crypttab"
	DefaultFstab    = "/etc/fstab"

	// timeoutOption keeps the boot from hanging on a device that is still
	// mid-reencryption.
	timeoutOption = "x-systemd.device-timeout=0"
	// tpmOption lets the pre-boot unlock path fetch the passphrase from
	// the TPM instead of prompting.
	tpmOption = "tpm2-device=auto"
)

// Synchronizer keeps the pre-boot unlock table (crypttab) and the boot
// mount table (fstab) consistent with the encryption state of devices.
// Edits are whole-file read-modify-write; the two tables are not updated
// transactionally, resume detection relies on the engine's persistent
// flags, not on them.
type Synchronizer struct {
	crypttab string
	fstab    string
	monitor  device.Monitor
}

func NewSynchronizer(crypttab, fstab string, monitor device.Monitor) *Synchronizer {
	if crypttab == "" {
		crypttab = DefaultCrypttab
	}
	if fstab == "" {
		fstab = DefaultFstab
	}
	return &Synchronizer{crypttab: crypttab, fstab: fstab, monitor: monitor}
}

// SweepCrypttab drops unlock-table lines that no longer correspond to an
// encrypted device, plus lines that do not parse. Comment lines are kept
// verbatim. Returns whether the table changed.
func (s *Synchronizer) SweepCrypttab() (bool, error) {
	lines, err := readLines(s.crypttab)
	if err != nil {
		return false, err
	}
	kept, changed := sweepCrypttabLines(lines, s.stillEncrypted)
	if !changed {
		return false, nil
	}
	if err := writeLines(s.crypttab, kept); err != nil {
		return false, err
	}
	klog.InfoS("Stale unlock-table entries removed", "path", s.crypttab)
	return true, nil
}

// stillEncrypted resolves a crypttab source descriptor to a live device and
// probes it. An unresolvable UUID means the device was decrypted (its UUID
// changed), so the line is stale; an unresolvable plain path is kept, the
// device may simply be detached.
func (s *Synchronizer) stillEncrypted(target, source string) bool {
	dev, err := s.monitor.Resolve(source)
	if err != nil {
		if strings.HasPrefix(source, "UUID=") {
			klog.V(2).InfoS("Unlock-table source no longer resolves, dropping", "target", target, "source", source)
			return false
		}
		return true
	}
	encrypted, err := s.monitor.IsEncrypted(dev.Path)
	if err != nil {
		return true
	}
	return encrypted
}

func sweepCrypttabLines(lines []string, stillEncrypted func(target, source string) bool) ([]string, bool) {
	kept := make([]string, 0, len(lines))
	changed := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			kept = append(kept, line)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			changed = true
			continue
		}
		if !stillEncrypted(fields[0], fields[1]) {
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	return kept, changed
}

// SetFstabTimeout appends the boot-timeout-suppression option to the mount
// table line of the device, matched by path or UUID form. Idempotent; only
// the first matching line is edited, all others stay byte-identical.
func (s *Synchronizer) SetFstabTimeout(devPath, uuid string) error {
	lines, err := readLines(s.fstab)
	if err != nil {
		return err
	}
	edited, changed := addFstabTimeout(lines, devPath, "UUID="+uuid)
	if !changed {
		return nil
	}
	if err := writeLines(s.fstab, edited); err != nil {
		return err
	}
	klog.InfoS("Boot timeout suppressed for device", "path", s.fstab, "device", devPath)
	return nil
}

func addFstabTimeout(lines []string, devPath, devUUID string) ([]string, bool) {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			continue
		}
		if fields[0] != devPath && fields[0] != devUUID {
			continue
		}
		if strings.Contains(fields[3], timeoutOption) {
			return lines, false
		}
		fields[3] += "," + timeoutOption
		lines[i] = strings.Join(fields, "\t")
		return lines, true
	}
	return lines, false
}

// AddCrypttabTPMHint appends the pre-boot TPM unlock hint to the unlock
// table line whose source matches. Idempotent.
func (s *Synchronizer) AddCrypttabTPMHint(source string) error {
	lines, err := readLines(s.crypttab)
	if err != nil {
		return err
	}
	edited, changed := addTPMHint(lines, source)
	if !changed {
		return nil
	}
	if err := writeLines(s.crypttab, edited); err != nil {
		return err
	}
	klog.InfoS("TPM unlock hint added", "path", s.crypttab, "source", source)
	return nil
}

func addTPMHint(lines []string, source string) ([]string, bool) {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != source {
			continue
		}
		switch {
		case len(fields) >= 4:
			if strings.Contains(fields[3], tpmOption) {
				return lines, false
			}
			fields[3] += "," + tpmOption
		case len(fields) == 3:
			fields = append(fields, tpmOption)
		default:
			fields = append(fields, "none", tpmOption)
		}
		lines[i] = strings.Join(fields, "\t")
		return lines, true
	}
	return lines, false
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	// drop the empty element a trailing newline produces; writeLines puts
	// the newline back
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	return util.AtomicWriteFile(path, []byte(content), 0644)
}
