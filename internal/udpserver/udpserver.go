// Package udpserver implements the single-task UDP receive loop: fast-path
// demux by bound address, trial-decrypt fallback over unassociated
// clients with a per-address rate limit, ping bounce-back, and fan-out
// dispatch for everything else.
package udpserver

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/fanout"
	"github.com/lotlab/voxrelay/pkg/state"
	"github.com/lotlab/voxrelay/pkg/voice"
)

// TrialQuota bounds how many trial-decrypt attempts a single source
// address gets within TrialWindow before its datagrams are dropped
// outright, so an unassociated sender can't force a decrypt attempt
// against every connected client's key on every packet.
const (
	TrialQuota  = 20
	TrialWindow = 1 * time.Second
)

// Server owns the shared UDP socket and demultiplexes datagrams to
// clients.
type Server struct {
	conn   *net.UDPConn
	state  *state.ServerState
	disp   *fanout.Dispatcher
	logger *log.Logger

	mu      sync.RWMutex
	addrIdx map[string]*client.Client

	trialMu sync.Mutex
	trials  map[string][]time.Time
}

// New binds a UDP socket on addr and returns a Server ready to Serve.
func New(addr *net.UDPAddr, st *state.ServerState, disp *fanout.Dispatcher, logger *log.Logger) (*Server, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		conn:    conn,
		state:   st,
		disp:    disp,
		logger:  logger,
		addrIdx: make(map[string]*client.Client),
		trials:  make(map[string][]time.Time),
	}
	disp.SendUDP = s.send
	return s, nil
}

// LocalAddr returns the bound socket address.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying socket, ending Serve.
func (s *Server) Close() error { return s.conn.Close() }

// send delivers already-encrypted bytes to addr with a 1s write deadline;
// a timeout or write error is fatal only for that one datagram, not for
// the client's session.
func (s *Server) send(addr *net.UDPAddr, encrypted []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(1 * time.Second))
	_, err := s.conn.WriteToUDP(encrypted, addr)
	return err
}

// bindAddr associates addr with c, making future datagrams from addr
// take the fast path.
func (s *Server) bindAddr(addr *net.UDPAddr, c *client.Client) {
	s.mu.Lock()
	s.addrIdx[addr.String()] = c
	s.mu.Unlock()
	c.SetUDPAddr(addr)
}

func (s *Server) boundClient(addr *net.UDPAddr) (*client.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.addrIdx[addr.String()]
	return c, ok
}

// allowTrial reports whether addr is still within its trial-decrypt
// quota for the current window, recording this attempt if so.
func (s *Server) allowTrial(addr *net.UDPAddr) bool {
	key := addr.String()
	now := time.Now()

	s.trialMu.Lock()
	defer s.trialMu.Unlock()

	attempts := s.trials[key]
	cutoff := now.Add(-TrialWindow)
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= TrialQuota {
		s.trials[key] = kept
		return false
	}
	s.trials[key] = append(kept, now)
	return true
}

// Serve runs the receive loop until the socket is closed.
func (s *Server) Serve() error {
	buf := make([]byte, 1500)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		if n < 5 {
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		go s.handleDatagram(datagram, addr)
	}
}

func (s *Server) handleDatagram(wire []byte, addr *net.UDPAddr) {
	var (
		c     *client.Client
		plain []byte
		err   error
	)

	if bound, ok := s.boundClient(addr); ok {
		plain, err = bound.Crypt.Decrypt(wire)
		if err == nil {
			c = bound
		}
	}

	if c == nil {
		if !s.allowTrial(addr) {
			return
		}
		found, decoded, ok := s.state.FindClientForUDP(wire)
		if !ok {
			return
		}
		c = found
		plain = decoded
		s.bindAddr(addr, c)
	}

	frame, err := voice.Decode(plain, voice.CodecFor(c.Opus))
	if err != nil {
		return
	}

	if frame.Type == voice.TypePing {
		s.send(addr, c.Crypt.Encrypt(nil, plain))
		return
	}

	s.disp.Dispatch(c, frame, false)
}
