// Command synctreed is the sync-session server: it listens for peer
// connections, negotiates each one through package session, and
// applies the resulting traffic against a single shared package
// registry tree. Grounded on the teacher's cmd/go-fuse/*/main.go style
// of a thin cobra-driven entrypoint around the library packages.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synctree/synctree/registry"
	"github.com/synctree/synctree/session"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "synctreed",
		Short: "synctree sync-session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("synctreed: exiting")
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	reg := registry.New()
	defer reg.Close()
	binder := newRegistryBinder(reg)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	logrus.WithField("addr", ln.Addr()).Info("synctreed: listening")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("synctreed: shutting down")
		cancel()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logrus.WithError(err).Warn("synctreed: accept failed")
				continue
			}
		}
		if err := session.TuneTCPConn(conn); err != nil {
			logrus.WithError(err).Warn("synctreed: socket tuning failed, continuing untuned")
		}
		go serveConn(ctx, conn, binder, cfg)
	}
}

func serveConn(ctx context.Context, conn net.Conn, binder *registryBinder, cfg Config) {
	defer conn.Close()
	log := logrus.WithField("remote", conn.RemoteAddr())

	sess := session.New(conn, binder, cfg.sessionInfo(), false)
	if err := sess.Handshake(ctx); err != nil {
		log.WithError(err).Warn("synctreed: handshake failed")
		return
	}
	if err := sess.Serve(ctx); err != nil {
		log.WithError(err).Info("synctreed: session ended")
	}
}
