package fsresize

import (
	"fmt"

	"k8s.io/klog/v2"
	k8sexec "k8s.io/utils/exec"
)

// Resizer adjusts the filesystem around header relocation. All operations
// are best effort; callers log failures and carry on unless noted.
type Resizer interface {
	// Shrink reduces the filesystem to its minimum size to free room for
	// the encryption header.
	Shrink(device string) error
	// Expand grows the filesystem to fill the device (or mapping) again.
	Expand(device string) error
	// RecoverSuperblock repairs the filesystem state after a device has
	// been decrypted back to plaintext.
	RecoverSuperblock(device string) error
}

// ExtResizer implements Resizer for ext filesystems with e2fsprogs.
type ExtResizer struct {
	exec k8sexec.Interface
}

func NewExtResizer(exec k8sexec.Interface) *ExtResizer {
	return &ExtResizer{exec: exec}
}

var _ Resizer = &ExtResizer{}

func (r *ExtResizer) Shrink(device string) error {
	if err := r.fsck(device); err != nil {
		return err
	}
	if out, err := r.exec.Command("resize2fs", "-M", device).CombinedOutput(); err != nil {
		return fmt.Errorf("resize2fs -M %s: %v, output: %s", device, err, out)
	}
	klog.V(4).InfoS("Filesystem shrunk to minimum", "device", device)
	return nil
}

func (r *ExtResizer) Expand(device string) error {
	if err := r.fsck(device); err != nil {
		return err
	}
	if out, err := r.exec.Command("resize2fs", device).CombinedOutput(); err != nil {
		return fmt.Errorf("resize2fs %s: %v, output: %s", device, err, out)
	}
	klog.V(4).InfoS("Filesystem expanded", "device", device)
	return nil
}

func (r *ExtResizer) RecoverSuperblock(device string) error {
	if out, err := r.exec.Command("e2fsck", "-f", "-y", device).CombinedOutput(); err != nil {
		return fmt.Errorf("e2fsck %s: %v, output: %s", device, err, out)
	}
	if out, err := r.exec.Command("resize2fs", device).CombinedOutput(); err != nil {
		return fmt.Errorf("resize2fs %s: %v, output: %s", device, err, out)
	}
	return nil
}

func (r *ExtResizer) fsck(device string) error {
	// resize2fs refuses to touch a filesystem that was not checked first
	if out, err := r.exec.Command("e2fsck", "-f", "-y", device).CombinedOutput(); err != nil {
		return fmt.Errorf("e2fsck %s: %v, output: %s", device, err, out)
	}
	return nil
}
