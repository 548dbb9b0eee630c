package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"

	"github.com/diskcrypt/diskcryptd/cmd/options"
)

// Options holds the parsed daemon configuration.
type Options struct {
	DaemonOptions *options.DaemonOptions
}

// GetOptions registers all flags on the given set and parses the command
// line.
func GetOptions(fs *flag.FlagSet) *Options {
	daemonOptions := options.NewDaemonOptions()
	daemonOptions.AddFlags(fs)
	klog.InitFlags(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		klog.ErrorS(err, "Could not parse flags")
		os.Exit(1)
	}
	return &Options{DaemonOptions: daemonOptions}
}
