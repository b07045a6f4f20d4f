package pulse

import "context"

// Request is what an event handler receives: the inbound message plus
// the socket and app it arrived on.
type Request struct {
	Event  string
	Data   any
	Socket *Socket
	App    *App
	ack    AckFunc
	ctx    context.Context
}

// Reply acknowledges the event this request was built from. It is a
// no-op when the sender did not ask for an acknowledgment, and writes
// at most one Ack packet no matter how often it is called.
func (r *Request) Reply(args ...any) error {
	if r.ack == nil {
		return nil
	}
	r.ack(args...)
	return nil
}

// Acked reports whether the sender asked for an acknowledgment.
func (r *Request) Acked() bool {
	return r.ack != nil
}

func (r *Request) Emit(event string, data any) {
	r.Socket.Emit(event, data)
}

func (r *Request) Set(key string, value any) {
	r.Socket.data.Store(key, value)
}

func (r *Request) Get(key string) (any, bool) {
	return r.Socket.data.Load(key)
}

func (r *Request) Join(room string) {
	r.Socket.Join(room)
}

func (r *Request) Leave(room string) {
	r.Socket.Leave(room)
}

func (r *Request) Tag(name string) {
	r.Socket.Tag(name)
}

func (r *Request) Untag(name string) {
	r.Socket.Untag(name)
}

func (r *Request) Broadcast(event string, data any, to string) {
	r.App.Broadcast(event, data, to)
}
