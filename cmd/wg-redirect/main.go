package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"wg-redirect/pkg/config"
	"wg-redirect/pkg/journal"
	"wg-redirect/pkg/provision"
	"wg-redirect/pkg/remote"
	"wg-redirect/pkg/tunnel"
	"wg-redirect/pkg/version"
)

func main() {
	envFile := flag.String("env", "", "path to .env file (default ./.env)")
	once := flag.Bool("once", false, "reconcile once and exit instead of supervising")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wg-redirect", version.Build)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &remote.Client{
		Host:    cfg.SSHHost,
		Port:    cfg.SSHPort,
		User:    cfg.SSHUser,
		KeyPath: cfg.SSHKeyPath,
		Timeout: cfg.SSHTimeout,
		Sudo:    cfg.SSHSudo,
	}
	controller := tunnel.NewController(cfg.Interface, cfg.LocalConfDir)
	jnl := journal.Open(cfg.JournalPath)
	defer jnl.Close()

	pipe := &provision.Pipeline{
		Cfg:     cfg,
		Runner:  runner,
		Tunnel:  controller,
		Prober:  provision.NewVerifier(runner, cfg.Interface, cfg.ProbeAttempts, cfg.ProbeTimeout),
		Journal: jnl,
	}
	if !*once {
		pipe.Supervisor = &tunnel.Supervisor{Tunnel: controller, Period: cfg.SupervisePeriod, Journal: jnl}
	}

	log.WithFields(log.Fields{"version": version.Build, "host": cfg.SSHHost, "iface": cfg.Interface}).Info("wg-redirect starting")
	if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("provisioning failed")
		os.Exit(1)
	}
	log.Info("wg-redirect stopped")
}
