package pulse

import "sync"

// Conn is what the dispatcher consumes from its transport. The
// transport owns connection lifecycle, framing and serialization; the
// dispatcher only shapes packets, tracks pending acknowledgments and
// routes inbound packets by kind.
type Conn interface {
	// WritePacket hands a packet to the transport for delivery.
	// Fire-and-forget: the dispatcher never consults a result.
	WritePacket(p Packet)

	// Reserved reports whether an event name belongs to the
	// connection's own protocol. Inbound events with reserved names
	// never reach local listeners, so a remote peer cannot spoof them.
	Reserved(event string) bool

	// OnEvent surfaces an inbound message to local listeners. ack is
	// non-nil only when the sender asked for an acknowledgment; calling
	// it more than once writes nothing after the first.
	OnEvent(msg Message, ack AckFunc)
}

// Dispatcher is the packet/acknowledgment layer riding on one
// connection. It lives exactly as long as the connection does and
// holds no state beyond the id counter and the pending-ack registry.
type Dispatcher struct {
	conn Conn

	mu   sync.Mutex
	seq  int64
	acks map[int64]AckFunc
}

func NewDispatcher(conn Conn) *Dispatcher {
	return &Dispatcher{
		conn: conn,
		acks: make(map[int64]AckFunc),
	}
}

// Send emits a named event. When ack is non-nil the next id is
// allocated, the callback registered under it and the id stamped onto
// the packet; a nil ack consumes no id. Send never fails: data is
// opaque and passed through unvalidated.
//
// A registered callback stays pending until the matching Ack packet
// arrives. There is no expiry, so a peer that never acknowledges
// leaks one registry entry per such Send.
func (d *Dispatcher) Send(event string, data any, ack AckFunc) *Dispatcher {
	p := Packet{
		Kind:    Event,
		Message: &Message{Name: event, Data: data},
	}

	if ack != nil {
		d.mu.Lock()
		d.seq++
		p.ID = d.seq
		d.acks[p.ID] = ack
		d.mu.Unlock()
	}

	d.conn.WritePacket(p)
	return d
}

// Dispatch routes one inbound packet. Malformed ids, unknown kinds,
// reserved event names and acknowledgments nobody is waiting for are
// all dropped silently: nothing a remote peer sends may surface as a
// local failure. The transport must call Dispatch once per received
// packet, in arrival order.
func (d *Dispatcher) Dispatch(p Packet) {
	if p.invalidID {
		return
	}

	switch p.Kind {
	case Event:
		d.onEvent(p)
	case Ack:
		d.onAck(p)
	}
}

func (d *Dispatcher) onEvent(p Packet) {
	if p.Message == nil {
		return
	}
	if d.conn.Reserved(p.Message.Name) {
		return
	}

	var ack AckFunc
	if p.ID > 0 {
		a := &acker{id: p.ID, conn: d.conn}
		ack = a.send
	}

	d.conn.OnEvent(*p.Message, ack)
}

func (d *Dispatcher) onAck(p Packet) {
	d.mu.Lock()
	cb, ok := d.acks[p.ID]
	if ok {
		delete(d.acks, p.ID)
	}
	d.mu.Unlock()

	if ok {
		cb(p.Data...)
	}
}
