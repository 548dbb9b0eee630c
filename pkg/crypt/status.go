package crypt

import (
	"fmt"

	"github.com/diskcrypt/diskcryptd/pkg/device"
	"k8s.io/klog/v2"
)

// FormatVersion classifies the on-disk encryption format of a device.
type FormatVersion int

const (
	NotEncrypted FormatVersion = iota
	LUKS1
	LUKS2
	// LUKSUnknown is a LUKS superblock of an unrecognized version.
	LUKSUnknown
	// VersionUnknown is an encrypted device that is not LUKS.
	VersionUnknown
)

func (v FormatVersion) String() string {
	switch v {
	case NotEncrypted:
		return "not-encrypted"
	case LUKS1:
		return "luks1"
	case LUKS2:
		return "luks2"
	case LUKSUnknown:
		return "luks-unknown"
	default:
		return "unknown"
	}
}

// ReencryptStatus classifies a pending reencryption recorded in the
// persistent requirement flags.
type ReencryptStatus int

const (
	StatusFinished ReencryptStatus = iota
	StatusOfflineUnfinished
	StatusOnlineUnfinished
	StatusUnknown
)

func (s ReencryptStatus) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusOfflineUnfinished:
		return "offline-unfinished"
	case StatusOnlineUnfinished:
		return "online-unfinished"
	default:
		return "unknown"
	}
}

// StatusResolver determines encryption format and reencryption state of
// devices. Results are computed on demand and never cached.
type StatusResolver struct {
	engine  Engine
	monitor device.Monitor
}

func NewStatusResolver(engine Engine, monitor device.Monitor) *StatusResolver {
	return &StatusResolver{engine: engine, monitor: monitor}
}

// ResolveFormatVersion inspects the device superblock. NotEncrypted is
// returned only when no recognizable encrypted superblock exists and the
// lower-level probe does not report the device encrypted either.
func (r *StatusResolver) ResolveFormatVersion(dev string) (FormatVersion, error) {
	props, err := r.monitor.Properties(dev)
	if err != nil {
		return VersionUnknown, fmt.Errorf("%w: %v", ErrInit, err)
	}
	if props.IDType == "crypto_LUKS" {
		switch props.IDVersion {
		case "1":
			return LUKS1, nil
		case "2":
			return LUKS2, nil
		default:
			return LUKSUnknown, nil
		}
	}
	encrypted, err := r.monitor.IsEncrypted(dev)
	if err != nil {
		return VersionUnknown, fmt.Errorf("%w: %v", ErrInit, err)
	}
	if encrypted {
		return VersionUnknown, nil
	}
	return NotEncrypted, nil
}

// ResolveReencryptStatus reads the persistent requirement flags of the
// device. Only the online bit authorizes a background resume; an offline
// requirement is reported but never resumed automatically.
func (r *StatusResolver) ResolveReencryptStatus(dev string) (ReencryptStatus, error) {
	flags, err := r.engine.PersistentFlags(dev)
	if err != nil {
		return StatusUnknown, err
	}
	status := StatusFromFlags(flags)
	klog.V(4).InfoS("Resolved reencryption status", "device", dev, "status", status)
	return status, nil
}

// StatusFromFlags is the pure mapping from requirement flags to status.
func StatusFromFlags(flags RequirementFlags) ReencryptStatus {
	status := StatusFinished
	if flags&RequirementOfflineReencrypt != 0 {
		status = StatusOfflineUnfinished
	}
	if flags&RequirementOnlineReencrypt != 0 {
		status = StatusOnlineUnfinished
	}
	if flags&RequirementUnknown != 0 {
		status = StatusUnknown
	}
	return status
}
