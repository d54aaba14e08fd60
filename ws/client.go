package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Generous ceiling on an inbound frame. Content length is enforced
	// separately, this only bounds what a client can make us buffer.
	maxFrameSize = 16 * 1024
)

// Client is one live websocket session. It is the EventSink the registry
// holds for its connection: Consume pushes into the buffered send channel
// and never blocks, so a stalled socket surfaces as ErrSlowConsumer and
// gets evicted instead of freezing a room's fan-out.
type Client struct {
	id          domain.ConnectionID
	userID      domain.UserID
	conn        *websocket.Conn
	coordinator contract.ICoordinator
	log         *slog.Logger

	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
}

func NewClient(
	conn *websocket.Conn,
	userID domain.UserID,
	coordinator contract.ICoordinator,
	log *slog.Logger,
	bufferSize int,
	sendRate float64,
	sendBurst int,
) *Client {
	id := domain.NewConnectionID()
	return &Client{
		id:          id,
		userID:      userID,
		conn:        conn,
		coordinator: coordinator,
		log:         log.With("connection_id", id, "user_id", userID),
		send:        make(chan []byte, bufferSize),
		limiter:     rate.NewLimiter(rate.Limit(sendRate), sendBurst),
	}
}

func (c *Client) ID() domain.ConnectionID { return c.id }

// Consume implements contract.EventSink.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	payload, err := json.Marshal(FrameFromEvent(e))
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Close tears down the underlying socket. The read pump notices and runs
// the full disconnect path, so eviction and a client-initiated close
// converge on the same cleanup.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Run starts both pumps and blocks until the connection is gone.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.coordinator.Disconnect(ctx, c.id)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("dropping malformed frame", "error", err)
			c.reject("", errors.ErrInvalidContent)
			continue
		}
		c.dispatch(ctx, frame)
	}
}

// dispatch routes one inbound frame. Failures only ever come back to this
// connection as error frames, never to the room.
func (c *Client) dispatch(ctx context.Context, frame ClientFrame) {
	room := domain.RoomID(frame.RoomID)

	switch frame.Action {
	case ActionJoin:
		if err := c.coordinator.Join(ctx, c.id, room); err != nil {
			c.reject(frame.Action, err)
		}
	case ActionLeave:
		if err := c.coordinator.Leave(ctx, c.id, room); err != nil {
			c.reject(frame.Action, err)
		}
	case ActionSend:
		if !c.limiter.Allow() {
			c.reject(frame.Action, errors.ErrRateLimited)
			return
		}
		if _, err := c.coordinator.Send(ctx, c.id, room, frame.Content); err != nil {
			c.reject(frame.Action, err)
		}
	case ActionTyping:
		if err := c.coordinator.Typing(ctx, c.id, room, frame.IsTyping); err != nil {
			c.reject(frame.Action, err)
		}
	default:
		c.log.Debug("unknown action", "action", frame.Action)
		c.reject(frame.Action, errors.ErrInvalidContent)
	}
}

func (c *Client) reject(action string, err error) {
	payload, marshalErr := json.Marshal(ErrorFrame(action, err))
	if marshalErr != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		// The write side is already wedged, the read pump will find out
		// soon enough.
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
