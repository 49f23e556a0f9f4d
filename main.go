/*
vkbind loads descriptor set signature files against a render device and
reports how they bind.

	vkbind [-config vkbind.toml] [-backend headless|vulkan] validate <signature>
	vkbind [-config vkbind.toml] [-backend headless|vulkan] report <signature>
	vkbind [-config vkbind.toml] [-backend headless|vulkan] watch <signature>
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vkbind/engine"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] validate|report|watch <signature file>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "engine configuration file (TOML)")
	backend := flag.String("backend", "", "render device: headless or vulkan (overrides the configuration)")
	logLevel := flag.String("log-level", "", "log level (overrides the configuration)")
	root := flag.String("root", "", "root signature to build instead of the file's MainRootSignature")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	command, path := flag.Arg(0), flag.Arg(1)

	cfg := core.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(*configPath); err != nil {
			core.LogFatal(err.Error())
		}
	}
	if *backend != "" {
		cfg.Device.Backend = *backend
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *root != "" {
		cfg.Signature.Root = *root
	}
	cfg.Signature.Path = path
	cfg.Signature.Watch = command == "watch"

	var run func(*engine.Engine) error
	switch command {
	case "validate":
		run = validate
	case "report":
		run = report
	case "watch":
		run = watch
	default:
		usage()
		os.Exit(2)
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogFatal(err.Error())
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal(err.Error())
	}
	err = run(e)
	if shutdownErr := e.Shutdown(); shutdownErr != nil {
		core.LogError(shutdownErr.Error())
	}
	if err != nil {
		core.LogFatal(err.Error())
	}
}

func validate(e *engine.Engine) error {
	bound := e.Signature()
	core.LogInfo("%s is valid for the %s device", bound.File.Path, e.Config.Device.Backend)
	return nil
}

func report(e *engine.Engine) error {
	if err := e.WriteReport(os.Stdout); err != nil {
		return err
	}
	return engine.WriteMetrics(os.Stdout)
}

func watch(e *engine.Engine) error {
	e.OnSignatureBound(func(_ *descriptor.BoundSignatureFile) {
		if err := e.WriteReport(os.Stdout); err != nil {
			core.LogError(err.Error())
		}
	})
	if err := e.WriteReport(os.Stdout); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-sigCh
	core.LogInfo("stopping")
	return nil
}
