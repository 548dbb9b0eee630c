package options

import (
	"flag"

	cliflag "k8s.io/component-base/cli/flag"

	"github.com/diskcrypt/diskcryptd/pkg/jobstore"
	"github.com/diskcrypt/diskcryptd/pkg/systab"
)

// DaemonOptions contains options and configuration settings for the daemon.
type DaemonOptions struct {
	// StateDir is the directory persisted job descriptors live in.
	StateDir string
	// CrypttabPath and FstabPath are overridable for testing.
	CrypttabPath string
	FstabPath    string
	// DisabledMountPoints lists mount points whose devices must never be
	// encrypted.
	DisabledMountPoints []string
	// RecoveryKeyRequired makes a failed recovery key enrollment abort the
	// encryption instead of only being logged.
	RecoveryKeyRequired bool
	// EventBuffer sizes the event channel.
	EventBuffer int
}

func NewDaemonOptions() *DaemonOptions {
	return &DaemonOptions{
		StateDir:            jobstore.DefaultDir,
		CrypttabPath:        systab.DefaultCrypttab,
		FstabPath:           systab.DefaultFstab,
		DisabledMountPoints: []string{"/", "/boot", "/boot/efi"},
		EventBuffer:         64,
	}
}

func (s *DaemonOptions) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.StateDir, "state-dir", s.StateDir, "Directory the persisted job descriptors are stored in")
	fs.StringVar(&s.CrypttabPath, "crypttab", s.CrypttabPath, "Path of the crypttab file to keep in sync")
	fs.StringVar(&s.FstabPath, "fstab", s.FstabPath, "Path of the fstab file to keep in sync")
	fs.Var(cliflag.NewStringSlice(&s.DisabledMountPoints), "disabled-mount-points", "Mount point whose device is refused for encryption. It may be specified multiple times, for example: '--disabled-mount-points=/ --disabled-mount-points=/boot'")
	fs.BoolVar(&s.RecoveryKeyRequired, "recovery-key-required", s.RecoveryKeyRequired, "Abort an encryption when the recovery key cannot be enrolled instead of continuing without one")
	fs.IntVar(&s.EventBuffer, "event-buffer", s.EventBuffer, "Size of the event channel buffer")
}
