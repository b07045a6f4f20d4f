package pulse

import (
	"encoding/json"
	"strings"
	"testing"
)

type surfaced struct {
	msg Message
	ack AckFunc
}

// fakeConn records everything the dispatcher does with its transport.
type fakeConn struct {
	written []Packet
	events  []surfaced
}

func (c *fakeConn) WritePacket(p Packet) {
	c.written = append(c.written, p)
}

func (c *fakeConn) Reserved(event string) bool {
	return strings.HasPrefix(event, "@")
}

func (c *fakeConn) OnEvent(msg Message, ack AckFunc) {
	c.events = append(c.events, surfaced{msg: msg, ack: ack})
}

func TestSendWithoutAckHasNoID(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	if got := d.Send("greet", map[string]any{"who": "a"}, nil); got != d {
		t.Fatalf("Send did not return the dispatcher")
	}

	if len(conn.written) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(conn.written))
	}
	p := conn.written[0]
	if p.Kind != Event {
		t.Fatalf("kind = %v, want EVENT", p.Kind)
	}
	if p.ID != 0 {
		t.Fatalf("fire-and-forget send consumed id %d", p.ID)
	}
	if p.Message == nil || p.Message.Name != "greet" {
		t.Fatalf("unexpected message: %+v", p.Message)
	}
	if len(d.acks) != 0 {
		t.Fatalf("registry not empty: %d entries", len(d.acks))
	}
}

func TestSendAllocatesIncreasingIDs(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	cb := func(args ...any) {}
	for i := 0; i < 5; i++ {
		d.Send("tick", nil, cb)
	}

	if len(conn.written) != 5 {
		t.Fatalf("expected 5 packets, got %d", len(conn.written))
	}
	var last int64
	for i, p := range conn.written {
		if p.ID != int64(i+1) {
			t.Fatalf("packet %d has id %d, want %d", i, p.ID, i+1)
		}
		if p.ID <= last {
			t.Fatalf("ids not strictly increasing: %d after %d", p.ID, last)
		}
		last = p.ID
	}
	if len(d.acks) != 5 {
		t.Fatalf("expected 5 pending acks, got %d", len(d.acks))
	}
}

func TestAckInvokesCallbackExactlyOnce(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	var calls int
	var got []any
	d.Send("greet", nil, func(args ...any) {
		calls++
		got = args
	})

	ack := Packet{Kind: Ack, ID: 1, Data: []any{"a", 2}}
	d.Dispatch(ack)
	d.Dispatch(ack)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != 2 {
		t.Fatalf("callback args = %v, want [a 2]", got)
	}
	if len(d.acks) != 0 {
		t.Fatalf("registry not drained: %d entries", len(d.acks))
	}
}

func TestAckUnknownIDIgnored(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{Kind: Ack, ID: 42, Data: []any{"x"}})

	if len(conn.written) != 0 || len(conn.events) != 0 {
		t.Fatalf("unknown ack had side effects")
	}
}

func TestDispatchUnknownKindIgnored(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{Kind: 7, ID: 1, Message: &Message{Name: "x"}})

	if len(conn.written) != 0 || len(conn.events) != 0 {
		t.Fatalf("unknown kind had side effects")
	}
}

func TestDispatchMalformedIDDropped(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	var calls int
	d.Send("greet", nil, func(args ...any) { calls++ })

	var p Packet
	if err := json.Unmarshal([]byte(`{"kind":1,"id":"abc","data":["a"]}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Dispatch(p)

	if calls != 0 {
		t.Fatalf("malformed ack reached callback")
	}

	if err := json.Unmarshal([]byte(`{"kind":0,"id":"abc","message":{"name":"x"}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Dispatch(p)

	if len(conn.events) != 0 {
		t.Fatalf("malformed event was surfaced")
	}
}

func TestEventSurfacesAckClosure(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{
		Kind:    Event,
		ID:      7,
		Message: &Message{Name: "x", Data: "payload"},
	})

	if len(conn.events) != 1 {
		t.Fatalf("expected 1 surfaced event, got %d", len(conn.events))
	}
	ev := conn.events[0]
	if ev.msg.Name != "x" || ev.msg.Data != "payload" {
		t.Fatalf("unexpected message: %+v", ev.msg)
	}
	if ev.ack == nil {
		t.Fatalf("expected an ack closure for id 7")
	}

	ev.ack(1, 2)
	ev.ack(3, 4)

	if len(conn.written) != 1 {
		t.Fatalf("ack closure wrote %d packets, want 1", len(conn.written))
	}
	p := conn.written[0]
	if p.Kind != Ack || p.ID != 7 {
		t.Fatalf("unexpected ack packet: %+v", p)
	}
	if len(p.Data) != 2 || p.Data[0] != 1 || p.Data[1] != 2 {
		t.Fatalf("ack data = %v, want [1 2]", p.Data)
	}
}

func TestEventWithoutIDHasNilAck(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{Kind: Event, Message: &Message{Name: "x"}})

	if len(conn.events) != 1 {
		t.Fatalf("expected 1 surfaced event, got %d", len(conn.events))
	}
	if conn.events[0].ack != nil {
		t.Fatalf("got an ack closure for an event without id")
	}
}

func TestReservedEventDropped(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{Kind: Event, ID: 3, Message: &Message{Name: "@disconnect"}})

	if len(conn.events) != 0 {
		t.Fatalf("reserved event was surfaced")
	}
	if len(conn.written) != 0 {
		t.Fatalf("reserved event produced a write")
	}
}

func TestEventWithoutMessageDropped(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	d.Dispatch(Packet{Kind: Event, ID: 3})

	if len(conn.events) != 0 {
		t.Fatalf("event without message was surfaced")
	}
}

func TestRoundTrip(t *testing.T) {
	conn := &fakeConn{}
	d := NewDispatcher(conn)

	var calls int
	var got []any
	d.Send("greet", map[string]any{"who": "a"}, func(args ...any) {
		calls++
		got = args
	})

	sent := conn.written[0]
	sent.Kind = Ack
	sent.Message = nil
	sent.Data = []any{nil, "hello a"}
	d.Dispatch(sent)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if len(got) != 2 || got[0] != nil || got[1] != "hello a" {
		t.Fatalf("callback args = %v", got)
	}
}
