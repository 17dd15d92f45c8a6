package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/evanphx/kernelino/config"
	"github.com/evanphx/kernelino/kernel"
	"github.com/evanphx/kernelino/kpm"
	klog "github.com/evanphx/kernelino/log"
	"github.com/evanphx/kernelino/pkg/term"
	"github.com/evanphx/kernelino/shell"
	"github.com/spf13/pflag"
)

var (
	fConfig   = pflag.StringP("config", "c", "", "JSON config file")
	fMemory   = pflag.Uint64P("memory", "m", 0, "bytes of simulated physical memory")
	fTick     = pflag.Duration("tick", 0, "clock tick period")
	fMonitor  = pflag.Duration("monitor", 0, "top refresh period")
	fLogLevel = pflag.StringP("log-level", "l", "", "trace, debug, info, warn or error")
	fRegistry = pflag.String("registry", "", "formula registry base url")
	fDebug    = pflag.BoolP("debug", "d", false, "debug logging, overrides --log-level")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()

	if *fConfig != "" {
		var err error

		cfg, err = config.Load(*fConfig)
		if err != nil {
			return nil, err
		}
	}

	flags := pflag.CommandLine

	if flags.Changed("memory") {
		cfg.MemoryBytes = *fMemory
	}

	if flags.Changed("tick") {
		cfg.TickPeriod = config.Duration(*fTick)
	}

	if flags.Changed("monitor") {
		cfg.MonitorPeriod = config.Duration(*fMonitor)
	}

	if flags.Changed("log-level") {
		cfg.LogLevel = *fLogLevel
	}

	if flags.Changed("registry") {
		cfg.Registry = *fRegistry
	}

	return cfg, cfg.Validate()
}

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *fDebug:
		klog.EnableDebug()
	case os.Getenv("TRACE") == "":
		klog.SetLevel(cfg.LogLevel)
	}

	k, err := kernel.NewKernel(cfg)
	if err != nil {
		log.Fatal(err)
	}

	opts := []shell.Option{
		shell.WithRegistry(kpm.NewHTTPRegistry(cfg.Registry)),
	}

	tty, err := term.Open(os.Stdin)
	if err != nil {
		klog.L.Debug("no-terminal", "error", err)
	} else {
		opts = append(opts, shell.WithTerminal(tty))
	}

	start := time.Now()

	err = shell.New(k, opts...).Run(context.Background())

	k.Shutdown()

	klog.L.Debug("session-finished", "elapsed", time.Since(start), "ticks", k.Clock().Ticks())

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	if err != nil {
		log.Fatal(err)
	}
}
