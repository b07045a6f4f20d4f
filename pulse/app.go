package pulse

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// App accepts websocket connections and routes inbound events to
// registered handlers. Each accepted connection gets its own Socket
// and Dispatcher.
type App struct {
	handlers   sync.Map
	rooms      sync.Map
	sockets    sync.Map
	middleware []MiddlewareFunc
	server     *http.Server
	log        zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		log:    zerolog.New(os.Stderr).With().Timestamp().Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger replaces the app logger. Sockets accepted afterwards
// inherit it.
func (a *App) WithLogger(log zerolog.Logger) *App {
	a.log = log
	return a
}

func (a *App) Use(fn MiddlewareFunc) *App {
	a.middleware = append(a.middleware, fn)
	return a
}

// On registers a handler for an event name. Any leading arguments are
// per-handler middleware; the last argument is the handler itself.
func (a *App) On(event string, args ...any) *App {
	if len(args) == 0 {
		return a
	}

	handler, ok := args[len(args)-1].(func(*Request) error)
	if !ok {
		return a
	}
	var middleware []MiddlewareFunc

	if len(args) > 1 {
		for _, m := range args[:len(args)-1] {
			middleware = append(middleware, m.(MiddlewareFunc))
		}
	}

	a.handlers.Store(event, &handlerEntry{
		handler:    handler,
		middleware: middleware,
	})

	return a
}

func (a *App) Namespace(prefix string) *Namespace {
	return &Namespace{
		app:    a,
		prefix: prefix,
	}
}

// Broadcast emits a fire-and-forget event to a set of sockets: a
// "#room", a "*tag", or every connected socket when to is anything
// else (including empty).
func (a *App) Broadcast(event string, data any, to string) {
	var targets []*Socket

	switch {
	case strings.HasPrefix(to, "#"):
		if roomMap, ok := a.rooms.Load(to); ok {
			rm := roomMap.(*sync.Map)
			rm.Range(func(key, _ any) bool {
				if socket, ok := a.sockets.Load(key); ok {
					targets = append(targets, socket.(*Socket))
				}
				return true
			})
		}
	case strings.HasPrefix(to, "*"):
		a.sockets.Range(func(_, value any) bool {
			socket := value.(*Socket)
			if socket.HasTag(to) {
				targets = append(targets, socket)
			}
			return true
		})
	default:
		a.sockets.Range(func(_, value any) bool {
			targets = append(targets, value.(*Socket))
			return true
		})
	}

	p := Packet{
		Kind:    Event,
		Message: &Message{Name: event, Data: data},
	}
	for _, socket := range targets {
		socket.WritePacket(p)
	}
}

func (a *App) GetSocket(socketID string) *Socket {
	if socket, ok := a.sockets.Load(socketID); ok {
		return socket.(*Socket)
	}
	return nil
}

func (a *App) Listen(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleWebSocket)
	a.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	a.log.Info().Str("addr", addr).Msg("listening")
	return a.server.ListenAndServe()
}

func (a *App) Close() error {
	a.cancel()
	if a.server != nil {
		return a.server.Shutdown(context.Background())
	}
	return nil
}

func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to accept websocket")
		return
	}

	socket := newSocket(conn, a, r)
	a.sockets.Store(socket.ID, socket)

	a.fire("@connection", socket)

	go socket.readPump()
	go socket.writePump()
}

// fire raises a framework event (@connection, @disconnect) locally.
// These names are reserved, so they can only originate here, never
// from the remote peer.
func (a *App) fire(event string, socket *Socket) {
	entry, ok := a.handlers.Load(event)
	if !ok {
		return
	}
	req := &Request{
		Event:  event,
		Socket: socket,
		App:    a,
		ctx:    socket.ctx,
	}
	if err := entry.(*handlerEntry).handler(req); err != nil {
		a.log.Error().Err(err).Str("event", event).Msg("handler error")
	}
}

func (a *App) joinRoom(room string, socket *Socket) {
	roomMap, _ := a.rooms.LoadOrStore(room, &sync.Map{})
	roomMap.(*sync.Map).Store(socket.ID, true)
}

func (a *App) leaveRoom(room string, socket *Socket) {
	if roomMap, ok := a.rooms.Load(room); ok {
		roomMap.(*sync.Map).Delete(socket.ID)
	}
}
