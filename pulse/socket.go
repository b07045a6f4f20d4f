package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Socket binds one websocket connection to a Dispatcher. It owns the
// read/write pumps and implements Conn, so the dispatcher can write
// packets, check the reserved namespace and surface inbound events to
// the app's handlers through it.
type Socket struct {
	ID         string
	conn       *websocket.Conn
	app        *App
	dispatcher *Dispatcher
	rooms      sync.Map
	tags       sync.Map
	data       sync.Map
	sendChan   chan Packet
	ctx        context.Context
	cancel     context.CancelFunc
	info       *http.Request
	log        zerolog.Logger
}

func newSocket(conn *websocket.Conn, app *App, req *http.Request) *Socket {
	ctx, cancel := context.WithCancel(app.ctx)
	id := uuid.New().String()

	s := &Socket{
		ID:       id,
		conn:     conn,
		app:      app,
		sendChan: make(chan Packet, 256),
		ctx:      ctx,
		cancel:   cancel,
		info:     req,
		log:      app.log.With().Str("socket", id[:8]).Logger(),
	}
	s.dispatcher = NewDispatcher(s)
	return s
}

// readPump decodes inbound frames and hands each packet to the
// dispatcher synchronously, preserving arrival order. Frames that do
// not decode are dropped; a remote peer cannot crash us with garbage.
func (s *Socket) readPump() {
	defer s.disconnect()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}

		var p Packet
		if err := json.Unmarshal(data, &p); err != nil {
			s.log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}

		s.dispatcher.Dispatch(p)
	}
}

func (s *Socket) writePump() {
	defer s.disconnect()

	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-s.sendChan:
			data, err := json.Marshal(p)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to marshal packet")
				continue
			}

			if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// WritePacket queues a packet for the write pump. Fire-and-forget:
// once the socket is closing the packet is silently discarded.
func (s *Socket) WritePacket(p Packet) {
	select {
	case s.sendChan <- p:
	case <-s.ctx.Done():
	}
}

// Reserved reports whether an event name is framework-internal.
// Names starting with "@" (@connection, @disconnect, @any, @error)
// are raised locally by the app and must never be accepted from the
// remote peer.
func (s *Socket) Reserved(event string) bool {
	return strings.HasPrefix(event, "@")
}

// OnEvent routes an inbound message through the app middleware and
// into the registered handler. ack is non-nil when the sender asked
// for an acknowledgment; it is exposed to the handler via Reply.
func (s *Socket) OnEvent(msg Message, ack AckFunc) {
	req := &Request{
		Event:  msg.Name,
		Data:   msg.Data,
		Socket: s,
		App:    s.app,
		ack:    ack,
		ctx:    s.ctx,
	}

	err := s.runMiddleware(s.app.middleware, req, func() error {
		if entry, ok := s.app.handlers.Load("@any"); ok {
			entry.(*handlerEntry).handler(req)
		}

		if entry, ok := s.app.handlers.Load(msg.Name); ok {
			he := entry.(*handlerEntry)

			return s.runMiddleware(he.middleware, req, func() error {
				return he.handler(req)
			})
		}

		if ack != nil {
			req.Reply(map[string]any{"error": fmt.Sprintf("no handler for %s", msg.Name)})
		} else if _, ok := s.app.handlers.Load("@any"); !ok {
			s.log.Debug().Str("event", msg.Name).Msg("no handler")
		}
		return nil
	})
	if err != nil {
		s.handleError(err, req)
	}
}

func (s *Socket) runMiddleware(middleware []MiddlewareFunc, req *Request, done func() error) error {
	if len(middleware) == 0 {
		return done()
	}

	var run func(int) error
	run = func(i int) error {
		if i >= len(middleware) {
			return done()
		}

		return middleware[i](req, func() error {
			return run(i + 1)
		})
	}

	return run(0)
}

// Emit sends a fire-and-forget event: no id is allocated and no
// acknowledgment is possible.
func (s *Socket) Emit(event string, data any) *Socket {
	s.dispatcher.Send(event, data, nil)
	return s
}

// Send emits an event. When ack is non-nil it is invoked later with
// whatever arguments the remote acknowledgment carries; it stays
// registered until that acknowledgment arrives.
func (s *Socket) Send(event string, data any, ack AckFunc) *Socket {
	s.dispatcher.Send(event, data, ack)
	return s
}

// Request emits an event and blocks until the remote side
// acknowledges, the given context is done or the socket closes. The
// context bounds only the caller's wait: the pending callback itself
// is not reaped, matching the protocol's no-expiry registry.
func (s *Socket) Request(ctx context.Context, event string, data any) ([]any, error) {
	reply := make(chan []any, 1)

	s.dispatcher.Send(event, data, func(args ...any) {
		reply <- args
	})

	select {
	case args := <-reply:
		return args, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s: %w", event, ctx.Err())
	case <-s.ctx.Done():
		return nil, fmt.Errorf("request %s: socket closed", event)
	}
}

func (s *Socket) Join(room string) *Socket {
	room = normalizeRoom(room)

	s.rooms.Store(room, true)
	s.app.joinRoom(room, s)
	return s
}

func (s *Socket) Leave(room string) *Socket {
	room = normalizeRoom(room)

	s.rooms.Delete(room)
	s.app.leaveRoom(room, s)
	return s
}

func (s *Socket) Tag(name string) *Socket {
	s.tags.Store(normalizeTag(name), true)
	return s
}

func (s *Socket) Untag(name string) *Socket {
	s.tags.Delete(normalizeTag(name))
	return s
}

func (s *Socket) HasTag(name string) bool {
	_, ok := s.tags.Load(normalizeTag(name))
	return ok
}

func normalizeRoom(room string) string {
	if !strings.HasPrefix(room, "#") {
		return "#" + room
	}
	return room
}

func normalizeTag(name string) string {
	if !strings.HasPrefix(name, "*") {
		return "*" + name
	}
	return name
}

func (s *Socket) disconnect() {
	s.cancel()
	if s.conn != nil {
		s.conn.Close(websocket.StatusNormalClosure, "")
	}

	s.rooms.Range(func(key, _ any) bool {
		s.Leave(key.(string))
		return true
	})

	if _, loaded := s.app.sockets.LoadAndDelete(s.ID); loaded {
		s.app.fire("@disconnect", s)
	}
}

func (s *Socket) handleError(err error, req *Request) {
	if entry, ok := s.app.handlers.Load("@error"); ok {
		entry.(*handlerEntry).handler(&Request{
			Event:  "@error",
			Data:   err.Error(),
			Socket: s,
			App:    s.app,
			ctx:    s.ctx,
		})
		return
	}
	s.log.Error().Err(err).Str("event", req.Event).Msg("handler error")
}
