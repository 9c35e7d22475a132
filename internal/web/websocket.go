package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient carries chat runs over one websocket. Each text message is a
// chatRequest; one run is active at a time.
type wsClient struct {
	srv    *Server
	conn   *websocket.Conn
	send   chan progress.Event
	ctx    context.Context
	cancel context.CancelFunc
	busy   atomic.Bool
}

// handleWebSocket upgrades the connection and starts the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	// The request context ends when the handler returns, so runs get their own.
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		srv:    s,
		conn:   conn,
		send:   make(chan progress.Event, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(consts.WSMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(consts.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(consts.WSPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.srv.log.Warn("websocket read error: %v", err)
			}
			return
		}

		var body chatRequest
		if err := json.Unmarshal(message, &body); err != nil {
			c.push(progress.Error("Invalid message: "+err.Error(), loop.FailureInternal))
			continue
		}
		req := body.runRequest()
		if req.Question == "" {
			c.push(progress.Error("No question provided.", loop.FailureInternal))
			continue
		}
		if !c.busy.CompareAndSwap(false, true) {
			c.push(progress.Error("A question is already being answered.", loop.FailureInternal))
			continue
		}
		go c.run(req)
	}
}

func (c *wsClient) run(req loop.RunRequest) {
	defer c.busy.Store(false)
	c.push(progress.Thinking(""))
	for e := range c.srv.runner.Stream(c.ctx, req) {
		c.push(e)
	}
}

// push queues e for the writer, giving up when the connection is gone.
func (c *wsClient) push(e progress.Event) {
	select {
	case c.send <- e:
	case <-c.ctx.Done():
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(consts.WSPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(consts.WSWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(consts.WSWriteWait))
			if err := c.conn.WriteJSON(e); err != nil {
				c.srv.log.Warn("failed to write websocket message: %v", err)
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(consts.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
