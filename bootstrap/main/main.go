// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/orbs-network/scribe/log"
	"github.com/tempora-network/tempora-go/bootstrap"
	"github.com/tempora-network/tempora-go/config"
)

func getLogger(cfg config.KernelConfig, logFilePath string) log.Logger {
	outputs := []log.Output{newOutput(os.Stdout, cfg)}
	if logFilePath != "" {
		logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("could not open log file: %s\n", err)
			os.Exit(1)
		}
		outputs = append(outputs, log.NewFormattingOutput(logFile, log.NewJsonFormatter()))
	}

	logger := log.GetLogger(log.String("version", config.GetVersion().Semantic)).WithOutput(outputs...)
	if !cfg.LoggerFullLog() {
		logger = logger.WithFilters(log.IgnoreMessagesMatching("metric rotation"))
	}
	return logger
}

func newOutput(f *os.File, cfg config.KernelConfig) log.Output {
	if cfg.LoggerHumanReadable() {
		return log.NewFormattingOutput(f, log.NewHumanReadableFormatter())
	}
	return log.NewFormattingOutput(f, log.NewJsonFormatter())
}

func main() {
	dataDir := flag.String("data", "", "directory for persistent stores; empty runs in memory")
	logFilePath := flag.String("log", "", "path/to/kernel.log")
	version := flag.Bool("version", false, "print version information")

	var configFiles config.FilesPaths
	flag.Var(&configFiles, "config", "path/to/config.json (repeatable, later files win)")

	flag.Parse()

	if *version {
		fmt.Println(config.GetVersion())
		return
	}

	cfg, err := config.GetKernelConfigFromFiles(configFiles, *dataDir)
	if err != nil {
		fmt.Printf("error reading configuration: %s\n", err)
		os.Exit(1)
	}

	logger := getLogger(cfg, *logFilePath)

	kernel, err := bootstrap.NewKernel(cfg, logger)
	if err != nil {
		logger.Error("kernel failed to start", log.Error(err))
		os.Exit(1)
	}

	bootstrap.RunUntilShutdown(kernel)
}
