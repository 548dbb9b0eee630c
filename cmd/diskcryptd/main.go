package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"
	k8sexec "k8s.io/utils/exec"

	"github.com/diskcrypt/diskcryptd/pkg/crypt"
	"github.com/diskcrypt/diskcryptd/pkg/device"
	"github.com/diskcrypt/diskcryptd/pkg/fsresize"
	"github.com/diskcrypt/diskcryptd/pkg/job"
	"github.com/diskcrypt/diskcryptd/pkg/lifecycle"
	"github.com/diskcrypt/diskcryptd/pkg/worker"
)

func main() {
	fs := flag.NewFlagSet("diskcryptd", flag.ExitOnError)
	opts := GetOptions(fs)

	execer := k8sexec.New()
	policy := worker.RecoveryKeyBestEffort
	if opts.DaemonOptions.RecoveryKeyRequired {
		policy = worker.RecoveryKeyRequired
	}
	mgr := lifecycle.New(
		crypt.NewCryptsetupEngine(execer),
		device.NewSystemMonitor(execer),
		fsresize.NewExtResizer(execer),
		nil,
		lifecycle.Options{
			StoreDir:            opts.DaemonOptions.StateDir,
			CrypttabPath:        opts.DaemonOptions.CrypttabPath,
			FstabPath:           opts.DaemonOptions.FstabPath,
			DisabledMountPoints: opts.DaemonOptions.DisabledMountPoints,
			RecoveryKeyPolicy:   policy,
			EventBuffer:         opts.DaemonOptions.EventBuffer,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	klog.InfoS("Starting diskcryptd", "stateDir", opts.DaemonOptions.StateDir)
	mgr.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			klog.InfoS("Shutting down")
			klog.Flush()
			os.Exit(0)
		case ev := <-mgr.Events():
			logEvent(ev)
		}
	}
}

func logEvent(ev job.Event) {
	switch e := ev.(type) {
	case job.Progress:
		klog.V(4).InfoS("Progress", "job", e.JobID, "device", e.Device, "fraction", e.Fraction)
	case job.Result:
		klog.InfoS("Job finished", "job", e.JobID, "op", e.Op, "device", e.Device, "code", e.Code)
	case job.RequestParams:
		klog.InfoS("Waiting for encryption parameters", "device", e.Device, "name", e.DeviceName)
	}
}
