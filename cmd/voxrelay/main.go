// Command voxrelay runs the voice relay server: the TLS control
// listener, the shared UDP voice socket, and the optional admin HTTP
// interface, all sharing one ServerState and Dispatcher. It replaces
// grumble's tlsserver.go bootstrap (grumble's listener setup lived
// there; modernized here into internal/config.LoadTLSConfig) with the
// spec's session/fanout/state packages.
package main

import (
	"crypto/tls"
	"log"
	"net"
	"os"

	"github.com/lotlab/voxrelay/internal/admin"
	"github.com/lotlab/voxrelay/internal/config"
	"github.com/lotlab/voxrelay/internal/udpserver"
	"github.com/lotlab/voxrelay/pkg/fanout"
	"github.com/lotlab/voxrelay/pkg/session"
	"github.com/lotlab/voxrelay/pkg/state"
)

func main() {
	logger := log.New(os.Stderr, "voxrelay: ", log.LstdFlags)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatalf("parsing flags: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return err
	}

	tlsConfig, err := config.LoadTLSConfig(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return err
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}
	defer listener.Close()

	st := state.New()
	disp := fanout.New(st, nil)

	udp, err := udpserver.New(udpAddr, st, disp, logger)
	if err != nil {
		return err
	}
	defer udp.Close()
	go func() {
		if err := udp.Serve(); err != nil {
			logger.Printf("udp server stopped: %v", err)
		}
	}()

	hub := admin.NewHub()
	sessionConfig := session.DefaultConfig()
	sessionConfig.TargetCapacity = cfg.ClientCapacity
	loop := session.New(st, disp, sessionConfig, logger)
	loop.Events = hub

	if cfg.HTTPListen != "" {
		adminServer := admin.New(st, hub, cfg, logger)
		go func() {
			if err := adminServer.Run(cfg.HTTPListen); err != nil {
				logger.Printf("admin server stopped: %v", err)
			}
		}()
	}

	logger.Printf("listening on %s (tcp+udp)", cfg.Listen)
	return acceptLoop(listener, tlsConfig, loop, logger)
}

// acceptLoop mirrors grumble's connection-per-goroutine model
// (cmd/grumble/client.go's tlsRecvLoop was itself spawned one per
// accepted connection): each TLS-wrapped connection runs its own
// session.Loop until the client disconnects.
func acceptLoop(listener *net.TCPListener, tlsConfig *tls.Config, loop *session.Loop, logger *log.Logger) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		go func() {
			tlsConn := tls.Server(conn, tlsConfig)
			if err := loop.Run(tlsConn); err != nil {
				logger.Printf("session ended: %v", err)
			}
		}()
	}
}
