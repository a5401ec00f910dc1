// Package admin implements the relay's admin HTTP interface: a read-only
// view of connected clients and the channel graph, plus a push stream of
// join/leave/move events, protected by HTTP basic auth. It is grounded
// on rustyguts-bken's internal/httpapi server (Echo wiring, route
// registration) and internal/ws handler (gorilla/websocket upgrade
// loop), adapted from that repo's chat-app domain to voxrelay's
// read-only admin surface. Logging stays on grumble's stdlib *log.Logger
// rather than that repo's slog, to match the rest of this codebase.
package admin

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/http2"

	"github.com/lotlab/voxrelay/internal/config"
	"github.com/lotlab/voxrelay/pkg/channel"
	"github.com/lotlab/voxrelay/pkg/state"
)

// Server is the admin HTTP application.
type Server struct {
	echo   *echo.Echo
	state  *state.ServerState
	hub    *Hub
	logger *log.Logger
	cfg    *config.Config
}

// New builds an Echo app exposing /health, /api/clients, /api/channels,
// and /api/events, wired to st and hub.
func New(st *state.ServerState, hub *Hub, cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, state: st, hub: hub, logger: logger, cfg: cfg}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	if len(s.cfg.HTTPPassword) > 0 {
		api.Use(middleware.BasicAuth(s.checkAuth))
	}
	api.GET("/clients", s.handleClients)
	api.GET("/channels", s.handleChannels)
	api.GET("/events", s.handleEvents)
}

func (s *Server) checkAuth(username, password string, c echo.Context) (bool, error) {
	if username != s.cfg.HTTPUser {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword(s.cfg.HTTPPassword, []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: len(s.state.All()),
	})
}

type clientView struct {
	Session  uint32 `json:"session"`
	Username string `json:"username"`
	Channel  uint32 `json:"channel"`
	Mute     bool   `json:"mute"`
	Deaf     bool   `json:"deaf"`
}

func (s *Server) handleClients(c echo.Context) error {
	clients := s.state.All()
	views := make([]clientView, 0, len(clients))
	for _, cl := range clients {
		views = append(views, clientView{
			Session:  cl.Session,
			Username: cl.Username,
			Channel:  cl.Channel(),
			Mute:     cl.IsMuted(),
			Deaf:     cl.IsDeaf(),
		})
	}
	return c.JSON(http.StatusOK, views)
}

type channelView struct {
	ID       uint32   `json:"id"`
	Name     string   `json:"name"`
	ParentID uint32   `json:"parent_id"`
	Temporary bool    `json:"temporary"`
	Tokens   []string `json:"tokens,omitempty"`
}

func (s *Server) handleChannels(c echo.Context) error {
	all := s.state.Channels.All()
	views := make([]channelView, 0, len(all))
	for _, ch := range all {
		views = append(views, toChannelView(ch))
	}
	return c.JSON(http.StatusOK, views)
}

func toChannelView(ch channel.Channel) channelView {
	return channelView{
		ID:        ch.ID,
		Name:      ch.Name,
		ParentID:  ch.ParentID,
		Temporary: ch.Temporary,
		Tokens:    ch.Tokens,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

const eventWriteTimeout = 5 * time.Second

// handleEvents upgrades the request to a websocket and streams Hub
// events to it until the client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Printf("admin: event stream write failed: %v", err)
			return nil
		}
	}
	return nil
}

// Run starts the Echo server on addr, serving TLS via cfg's key/cert
// when cfg.HTTPS is set, and blocks until the listener returns.
func (s *Server) Run(addr string) error {
	if !s.cfg.HTTPS {
		return s.echo.Start(addr)
	}
	if err := http2.ConfigureServer(s.echo.TLSServer, &http2.Server{}); err != nil {
		return err
	}
	return s.echo.StartTLS(addr, s.cfg.CertPath, s.cfg.KeyPath)
}

// Shutdown gracefully stops the Echo server.
func (s *Server) Shutdown() error {
	return s.echo.Close()
}
