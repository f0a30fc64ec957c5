package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// DefaultFeedAddr is the feed listen address unless configured otherwise.
const DefaultFeedAddr = "127.0.0.1:8765"

const (
	feedSendBuffer = 64
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 50 * time.Second
	feedPongWait   = 60 * time.Second
)

// FeedPresenter broadcasts every presenter call as a JSON Message to all
// WebSocket clients connected at /ws. Slow clients drop messages rather
// than stall decoding.
type FeedPresenter struct {
	log      *log.Logger
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*feedClient
	closed  bool
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// ListenFeed starts serving the feed on addr.
func ListenFeed(addr string, logger *log.Logger) (*FeedPresenter, error) {
	if addr == "" {
		addr = DefaultFeedAddr
	}
	if logger == nil {
		logger = log.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("presenter: feed listen: %w", err)
	}
	p := &FeedPresenter{
		log:     logger.With("component", "feed"),
		ln:      ln,
		clients: make(map[string]*feedClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWS)
	p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("feed server stopped", "err", err)
		}
	}()
	p.log.Info("feed listening", "url", "ws://"+ln.Addr().String()+"/ws")
	return p, nil
}

// Addr returns the address the feed listens on.
func (p *FeedPresenter) Addr() net.Addr { return p.ln.Addr() }

func (p *FeedPresenter) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warn("upgrade failed", "err", err)
		return
	}
	c := &feedClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, feedSendBuffer)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.clients[c.id] = c
	p.mu.Unlock()
	p.log.Debug("client connected", "client", c.id, "remote", r.RemoteAddr)

	go p.writePump(c)
	p.readPump(c)
}

// readPump only handles control frames; it returns when the client goes
// away and then unregisters it.
func (p *FeedPresenter) readPump(c *feedClient) {
	defer p.unregister(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Debug("client read error", "client", c.id, "err", err)
			}
			return
		}
	}
}

func (p *FeedPresenter) writePump(c *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.log.Debug("client write error", "client", c.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *FeedPresenter) unregister(c *feedClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[c.id]; ok {
		delete(p.clients, c.id)
		close(c.send)
		p.log.Debug("client disconnected", "client", c.id)
	}
}

// Clients returns the number of connected clients.
func (p *FeedPresenter) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *FeedPresenter) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		p.log.Error("encode message", "err", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		select {
		case c.send <- data:
		default:
			p.log.Warn("client too slow, dropping message", "client", c.id)
		}
	}
}

func (p *FeedPresenter) SegmentStart() { p.broadcast(Message{Event: EventSegmentStart}) }

func (p *FeedPresenter) NewTurn() { p.broadcast(Message{Event: EventNewTurn}) }

func (p *FeedPresenter) PartialResult(words []asr.Word) {
	p.broadcast(resultMessage(EventPartial, words))
}

func (p *FeedPresenter) FinalResult(words []asr.Word) {
	p.broadcast(resultMessage(EventFinal, words))
}

func (p *FeedPresenter) SegmentEnd() { p.broadcast(Message{Event: EventSegmentEnd}) }

// Close disconnects all clients and stops the server.
func (p *FeedPresenter) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, c := range p.clients {
		delete(p.clients, id)
		close(c.send)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), feedWriteWait)
	defer cancel()
	return p.srv.Shutdown(ctx)
}
