package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	gundogerrors "github.com/gundog/gundog/internal/errors"
)

// Heartbeat and resource limits (spec §4.11, §5).
const (
	pingInterval    = 30 * time.Second
	pongWait        = 60 * time.Second
	writeWait       = 10 * time.Second
	maxInFlightReqs = 16
)

// connection is one client WebSocket session: a read pump parsing
// line-delimited JSON requests, a sequencer that delivers each
// request's response in arrival order, a write pump serializing those
// responses onto the wire, and a bounded pool of in-flight request
// handlers.
type connection struct {
	id     string
	server *Server
	ws     *websocket.Conn

	send  chan []byte
	sem   chan struct{}    // capacity maxInFlightReqs
	order chan chan []byte // FIFO of reply slots, one reserved per dispatched request in arrival order, drained by sequencer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    chan struct{}
}

func newConnection(s *Server, ws *websocket.Conn) *connection {
	return &connection{
		id:      uuid.NewString(),
		server:  s,
		ws:      ws,
		send:    make(chan []byte, 64),
		sem:     make(chan struct{}, maxInFlightReqs),
		order:   make(chan chan []byte, maxInFlightReqs),
		cancels: make(map[string]context.CancelFunc),
		done:    make(chan struct{}),
	}
}

// run drives the connection until the client disconnects or the server
// shuts it down. It blocks the caller (ServeHTTP).
func (c *connection) run() {
	go c.writePump()
	go c.sequencer()
	c.readPump()

	close(c.done)
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Unlock()
}

// sequencer enforces "within one connection, responses are returned in
// request order" (spec §6.3): it drains reply slots in the order
// dispatch reserved them, blocking on each slot until its handler
// goroutine has filled it, so a fast request finishing behind a slow
// one waits for the slow one's response to be forwarded first.
func (c *connection) sequencer() {
	for {
		select {
		case slot := <-c.order:
			select {
			case data := <-slot:
				select {
				case c.send <- data:
				case <-c.done:
					return
				}
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) readPump() {
	defer c.ws.Close()
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			slot := make(chan []byte, 1)
			select {
			case c.order <- slot:
			case <-c.done:
				return
			}
			c.reply(slot, newError("", gundogerrors.CodeInvalidRequest, "malformed request frame"))
			continue
		}
		c.dispatch(req)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// dispatch reserves req's position in the connection's response
// ordering queue before admitting it into the bounded worker pool, so
// the sequencer can forward responses in the order requests arrived
// even though handlers run concurrently and may finish out of order.
// It replies with RATE_LIMITED when the per-connection in-flight cap
// is already held.
func (c *connection) dispatch(req Request) {
	slot := make(chan []byte, 1)
	select {
	case c.order <- slot:
	case <-c.done:
		return
	}

	select {
	case c.sem <- struct{}{}:
	default:
		c.reply(slot, newError(req.ID, gundogerrors.CodeRateLimited, "too many in-flight requests on this connection (limit "+strconv.Itoa(maxInFlightReqs)+")"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if req.ID != "" {
		c.mu.Lock()
		c.cancels[req.ID] = cancel
		c.mu.Unlock()
	}

	go func() {
		defer func() {
			<-c.sem
			if req.ID != "" {
				c.mu.Lock()
				delete(c.cancels, req.ID)
				c.mu.Unlock()
			}
			cancel()
		}()
		c.handle(ctx, req, slot)
	}()
}

func (c *connection) handle(ctx context.Context, req Request, slot chan []byte) {
	switch req.Type {
	case TypeQuery:
		c.handleQuery(ctx, req, slot)
	case TypeListIndexes:
		c.handleListIndexes(req, slot)
	case TypeSwitchIndex:
		c.handleSwitchIndex(req, slot)
	default:
		c.reply(slot, newError(req.ID, gundogerrors.CodeInvalidRequest, "unknown request type "+strconv.Quote(req.Type)))
	}
}

// reply marshals v into slot, the ordering position dispatch reserved
// for this request's response. The sequencer forwards slot's contents
// to the write pump once every response reserved ahead of it has been
// forwarded.
func (c *connection) reply(slot chan []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("daemon: failed to marshal response", slog.Any("error", err))
		data, _ = json.Marshal(newError("", gundogerrors.CodeInternal, "failed to marshal response"))
	}
	slot <- data
}

// sendJSON writes v directly to the write pump, bypassing the response
// ordering queue. Only unsolicited server-initiated pushes (status
// broadcasts) that aren't a reply to any particular request use this;
// request/response traffic goes through dispatch's reserved slot and
// reply so spec §6.3's ordering guarantee holds.
func (c *connection) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("daemon: failed to marshal response", slog.Any("error", err))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}
