package com

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/logger"
)

type (
	// In is a received packet. A non-empty Id marks it as a reply to (or a
	// request expecting) a correlated packet.
	In struct {
		Id      Uid             `json:"id,omitempty"`
		T       string          `json:"t"`
		Payload json.RawMessage `json:"p,omitempty"`
	}
	// Out is a packet to be sent.
	Out struct {
		Id      string `json:"id,omitempty"`
		T       string `json:"t"`
		Payload any    `json:"p,omitempty"`
	}
	Client struct {
		id    Uid
		conn  *WS
		queue Map[Uid, *call]

		onPacket func(packet In)
		log      *logger.Logger
	}
	call struct {
		done     chan struct{}
		err      error
		response In
	}
)

var (
	ErrClosed  = errors.New("connection closed")
	ErrTimeout = errors.New("call timeout")
)

const callTimeout = 5 * time.Second

// NewServer upgrades an incoming request to a packet connection.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	ws, err := NewServerWS(w, r, log)
	if err != nil {
		return nil, err
	}
	return newClient(ws, log), nil
}

// NewClient dials address and returns a packet connection.
func NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	ws, err := NewClientWS(address, log)
	if err != nil {
		return nil, err
	}
	return newClient(ws, log), nil
}

func newClient(ws *WS, log *logger.Logger) *Client {
	id := NewUid()
	c := &Client{
		id:    id,
		conn:  ws,
		queue: NewMap[Uid, *call](),
		log:   log.Extend(log.With().Str("cid", id.Short())),
	}
	ws.SetMessageHandler(c.handleMessage)
	return c
}

func (c *Client) Id() Uid { return c.id }

func (c *Client) OnPacket(fn func(packet In)) { c.onPacket = fn }

// Listen starts the connection pumps; OnPacket must be set before.
func (c *Client) Listen() { c.conn.Listen() }

func (c *Client) Wait() chan struct{} { return c.conn.Done }

func (c *Client) Close() {
	c.conn.Close()
	c.drain(ErrClosed)
}

// Call sends a packet and blocks until the correlated reply or a timeout.
func (c *Client) Call(t string, payload any) (In, error) {
	id := NewUid()
	data, err := json.Marshal(Out{Id: id.String(), T: t, Payload: payload})
	if err != nil {
		return In{}, err
	}
	task := &call{done: make(chan struct{})}
	c.queue.Put(id, task)
	c.conn.Write(data)
	select {
	case <-task.done:
	case <-time.After(callTimeout):
		c.queue.RemoveByKey(id)
		task.err = ErrTimeout
	}
	return task.response, task.err
}

// Notify sends a packet without expecting a reply.
func (c *Client) Notify(t string, payload any) {
	data, err := json.Marshal(Out{T: t, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Msgf("encode %v", t)
		return
	}
	c.conn.Write(data)
}

// Route replies to a correlated request packet.
func (c *Client) Route(p In, t string, payload any) {
	data, err := json.Marshal(Out{Id: p.Id.String(), T: t, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Msgf("encode %v", t)
		return
	}
	c.conn.Write(data)
}

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		return
	}
	var in In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Warn().Err(err).Msg("malformed packet")
		return
	}
	// a known id means someone is blocked waiting for this packet
	if !in.Id.IsEmpty() {
		if task, ok := c.queue.Pop(in.Id); ok && task != nil {
			task.response = in
			close(task.done)
			return
		}
	}
	if c.onPacket != nil {
		c.onPacket(in)
	}
}

// drain cancels all what's left in the call queue.
func (c *Client) drain(err error) {
	c.queue.ForEach(func(task *call) {
		if task.err == nil {
			task.err = err
			close(task.done)
		}
	})
}
