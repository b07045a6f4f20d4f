package pulse

import "sync"

// AckFunc is the acknowledgment callback shape used on both sides of
// the protocol: the sender registers one with Send to be told when the
// remote peer acknowledged, and a local handler receives one so it can
// acknowledge an inbound event. Arguments are whatever the
// acknowledging side supplied.
type AckFunc func(args ...any)

// acker writes the Ack packet answering a single event id. The once
// guard makes the resulting callback safe to hand to arbitrary user
// code: only the first invocation writes, the rest are no-ops.
type acker struct {
	id   int64
	conn Conn
	once sync.Once
}

func (a *acker) send(args ...any) {
	a.once.Do(func() {
		a.conn.WritePacket(Packet{Kind: Ack, ID: a.id, Data: args})
	})
}
