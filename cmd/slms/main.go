// Command slms runs the DLNA/UPnP media server: it indexes the configured
// share folders, then serves SSDP discovery and the ContentDirectory /
// ConnectionManager control endpoint until interrupted.
package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/anacrolix/log"

	"github.com/zeroexploit/slms/config"
	"github.com/zeroexploit/slms/contentdirectory"
	"github.com/zeroexploit/slms/dlna/dms"
	"github.com/zeroexploit/slms/library"
	"github.com/zeroexploit/slms/probe"
)

func main() {
	logger := log.Default.WithNames("slms")

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Levelf(log.Error, "config: %s", err)
		os.Exit(2)
	}

	containers := library.DefaultContainers()
	prober := &probe.Prober{
		Containers: containers,
		Logger:     logger.WithNames("probe"),
	}

	lib := library.New(cfg.DatabasePath, cfg.Folders, prober, containers, logger.WithNames("library"))

	renderers := make(map[string]contentdirectory.RenderOptions, len(cfg.Renderers))
	for name, rc := range cfg.Renderers {
		renderers[name] = contentdirectory.RenderOptions{
			TitleInsteadOfName: rc.TitleInsteadOfName,
			HideFileExtension:  rc.HideFileExtension,
		}
	}

	var httpConn net.Listener
	if cfg.ServerPort != 0 {
		if httpConn, err = net.Listen("tcp", ":"+strconv.Itoa(cfg.ServerPort)); err != nil {
			logger.Levelf(log.Error, "listen: %s", err)
			os.Exit(1)
		}
	}
	var ifaces []net.Interface
	if cfg.ServerInterface != "" {
		iface, err := net.InterfaceByName(cfg.ServerInterface)
		if err != nil {
			logger.Levelf(log.Error, "interface: %s", err)
			os.Exit(1)
		}
		ifaces = []net.Interface{*iface}
	}

	srv := &dms.Server{
		HTTPConn:        httpConn,
		Interfaces:      ifaces,
		FriendlyName:    cfg.ServerName,
		Library:         lib,
		RenderOpts:      renderers[cfg.DefaultRenderer],
		Renderers:       renderers,
		DefaultRenderer: cfg.DefaultRenderer,
		Logger:          logger,
	}

	if err := srv.Init(); err != nil {
		logger.Levelf(log.Error, "init: %s", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Levelf(log.Info, "shutting down")
		if err := srv.Close(); err != nil {
			logger.Levelf(log.Warning, "close: %s", err)
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Levelf(log.Error, "run: %s", err)
		os.Exit(1)
	}
}
