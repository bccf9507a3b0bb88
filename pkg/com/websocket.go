package com

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liveclass/liveclass/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	pongTime       = 60 * time.Second
	pingTime       = pongTime * 9 / 10
	writeWait      = 10 * time.Second
)

// WS wraps a single websocket connection with serialized read/write pumps.
type WS struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	// pingPong is enabled on the server side of a connection.
	pingPong bool

	onMessage func(data []byte, err error)

	once sync.WaitGroup
	Done chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServerWS(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

func NewClientWS(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	ws := &WS{
		conn:     conn,
		send:     make(chan []byte, 16),
		log:      log,
		pingPong: pingPong,
		Done:     make(chan struct{}, 1),
	}
	ws.once.Add(2)
	return ws
}

// SetMessageHandler must be called before Listen.
func (ws *WS) SetMessageHandler(fn func(data []byte, err error)) { ws.onMessage = fn }

// Listen starts both pumps.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

func (ws *WS) reader() {
	defer func() {
		close(ws.send)
		ws.once.Done()
		ws.close()
	}()
	ws.conn.SetReadLimit(maxMessageSize)
	if ws.pingPong {
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		ws.conn.SetPongHandler(func(string) error {
			return ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		})
	}
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			break
		}
		if ws.onMessage != nil {
			ws.onMessage(message, nil)
		}
	}
}

func (ws *WS) writer() {
	var ticker *time.Ticker
	if ws.pingPong {
		ticker = time.NewTicker(pingTime)
	} else {
		// a stopped ticker never fires
		ticker = time.NewTicker(pingTime)
		ticker.Stop()
	}
	defer func() {
		ticker.Stop()
		ws.once.Done()
		ws.close()
	}()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ws *WS) write(t int, data []byte) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(t, data)
}

// Write queues data for sending; drops when the peer stalled long enough to
// fill the buffer and the socket is closing.
func (ws *WS) Write(data []byte) {
	defer func() { recover() }() // send on closed channel during shutdown
	ws.send <- data
}

func (ws *WS) Close() { _ = ws.conn.Close() }

func (ws *WS) close() {
	ws.once.Wait()
	_ = ws.conn.Close()
	select {
	case ws.Done <- struct{}{}:
	default:
	}
}
