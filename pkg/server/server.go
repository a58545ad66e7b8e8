package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/events"
)

// Server owns the network listeners for a Game: the telnet ports
// (cleartext and TLS) plus the web front end when enabled.
type Server struct {
	Game        *Game
	listener    net.Listener
	tlsListener net.Listener
	webServer   *WebServer
}

// NewServer creates a server around an existing game instance.
func NewServer(game *Game) *Server {
	return &Server{Game: game}
}

// Start begins listening for connections. It blocks until all listeners
// have stopped.
func (s *Server) Start() error {
	conf := s.Game.Conf
	if !conf.IsCleartext() && !conf.TLS && !conf.WebEnabled {
		return fmt.Errorf("all listeners are disabled; nothing to listen on")
	}

	rooms, things, players := s.Game.World.Counts()
	log.Printf("World: %d rooms, %d things, %d players", rooms, things, players)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if conf.IsCleartext() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", conf.Port))
			if err != nil {
				errCh <- fmt.Errorf("cleartext listener: %w", err)
				return
			}
			s.listener = ln
			log.Printf("Listening (cleartext) on port %d", conf.Port)
			s.acceptLoop(ln)
		}()
	}

	if conf.TLS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := tls.LoadX509KeyPair(conf.TLSCert, conf.TLSKey)
			if err != nil {
				errCh <- fmt.Errorf("TLS cert load: %w", err)
				return
			}
			tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
			ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", conf.TLSPort), tlsCfg)
			if err != nil {
				errCh <- fmt.Errorf("TLS listener: %w", err)
				return
			}
			s.tlsListener = ln
			log.Printf("Listening (TLS) on port %d", conf.TLSPort)
			s.acceptLoop(ln)
		}()
	}

	if conf.WebEnabled {
		s.webServer = NewWebServer(s.Game)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.webServer.Start(); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	// Check for early startup errors
	select {
	case err := <-errCh:
		return err
	default:
	}

	wg.Wait()
	return nil
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes all active listeners.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single telnet connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	g := s.Game
	id := g.Conns.NextID()
	d := NewDescriptor(id, conn)
	g.Conns.Add(d)
	g.Metrics.SetSessions(g.Conns.Count())

	log.Printf("NET: [%d] new connection from %s", d.ID, d.Addr)

	defer func() {
		if !d.IsClosed() {
			g.DisconnectPlayer(d, "connection dropped")
		} else {
			g.Conns.Remove(d)
			g.Metrics.SetSessions(g.Conns.Count())
		}
		log.Printf("NET: [%d] connection closed from %s", d.ID, d.Addr)
	}()

	d.SendNoNewline(WelcomeText)

	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)
	idle := time.Duration(g.Conf.IdleTimeout) * time.Second

	for {
		if idle > 0 {
			d.Conn.SetReadDeadline(time.Now().Add(idle))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
				d.Send("You have been idle too long. Disconnecting.")
				log.Printf("NET: [%d] idle timeout for %s", d.ID, d.PlayerName())
			}
			return
		}
		if d.IsClosed() {
			return
		}

		line := scanner.Text()
		d.BytesRecv += len(line) + 1 // +1 for newline
		g.Metrics.AddBytesRecv(len(line) + 1)
		line = stripTelnet(line)
		line = strings.TrimRight(line, "\r\n")
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginLine(d, line)
		} else {
			d.CmdCount++
			DispatchCommand(g, d, line)
		}

		if d.IsClosed() {
			return
		}
	}
}

// loginGuidance is re-shown whenever a pre-login line makes no sense.
const loginGuidance = `Commands available before you connect:
  connect <name> <password>   take up an existing character
  create <name> <password>    forge a new character
  WHO                         see who is awake in the world
  QUIT                        disconnect`

// handleLoginLine processes one line from a connection that has not
// logged in yet.
func (s *Server) handleLoginLine(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	switch strings.ToUpper(input) {
	case "QUIT":
		d.Send("The fire burns low. Goodbye!")
		d.Close()
		return
	case "WHO":
		s.Game.ShowWho(d)
		return
	case "HELP":
		d.Send(loginGuidance)
		return
	}

	command, user, password := ParseConnect(input)

	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send(loginGuidance)
	}
}

// handleConnect authenticates and logs in an existing player.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	g := s.Game
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	player, ok := g.World.PlayerByName(user)
	if !ok || !CheckPassword(player.PassHash, password) {
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	// Accounts imported from old player files carry DES-crypt hashes;
	// upgrade them the first time the password is seen in the clear.
	if NeedsRehash(player.PassHash) {
		if newHash, err := HashPassword(password); err == nil {
			player.PassHash = newHash
			g.PersistPlayer(player)
			log.Printf("AUTH: upgraded stored password for %s", player.Name)
		}
	}

	already := g.Conns.IsConnected(player.Ref)
	g.Conns.Login(d, player)
	log.Printf("NET: [%d] player %s(%s) connected from %s", d.ID, player.Name, player.Ref, d.Addr)

	d.Send(fmt.Sprintf("Welcome back, %s!", player.Name))
	if g.Help != nil {
		if txt := g.Help.MOTD(); txt != "" {
			d.SendNoNewline(txt)
		}
	}

	if !already {
		g.AnnounceToRoom(player.Location, player.Ref, events.EvConnect,
			fmt.Sprintf("%s has connected.", player.Name))
	}

	g.ShowRoom(d, player.Location)
	d.Prompt()
}

// handleCreate creates a new player and logs them in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	g := s.Game
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}

	if _, exists := g.World.PlayerByName(user); exists {
		d.Send("That name is already taken.")
		return
	}
	if reason, ok := ValidateName(user); !ok {
		d.Send(reason)
		return
	}

	hash, err := HashPassword(password)
	if err != nil {
		log.Printf("AUTH: hashing password for new player %s: %v", user, err)
		d.Send("Something went wrong creating that character. Try again.")
		return
	}

	player, err := g.World.NewPlayer(user, hash, g.StartRoom)
	if err != nil {
		d.Send("That name is already taken.")
		return
	}
	g.PersistPlayer(player)

	log.Printf("NET: [%d] new player %s(%s) created from %s", d.ID, player.Name, player.Ref, d.Addr)

	g.Conns.Login(d, player)
	d.Send(fmt.Sprintf("Welcome to %s, %s! Your character has been created as %s.",
		g.Conf.WorldName, player.Name, player.Ref))
	if g.Help != nil {
		if txt := g.Help.MOTD(); txt != "" {
			d.SendNoNewline(txt)
		}
	}

	g.AnnounceToRoom(player.Location, player.Ref, events.EvConnect,
		fmt.Sprintf("%s has entered the world for the first time.", player.Name))

	g.ShowRoom(d, player.Location)
	d.Prompt()
}

// stripTelnet removes telnet IAC command sequences from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			// IAC command: skip 3 bytes (IAC + cmd + option)
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		// Skip other control chars except tab and standard whitespace
		if s[i] < 32 && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
