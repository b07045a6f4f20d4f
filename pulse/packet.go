package pulse

import "encoding/json"

// Kind tags the two packet variants exchanged on the wire.
type Kind int

const (
	// Event carries a named message, optionally awaiting acknowledgment.
	Event Kind = iota
	// Ack answers a specific prior Event packet.
	Ack
)

// Packets exposes the wire values of the packet kinds so peers
// implementing the protocol in other languages can interoperate.
var Packets = map[string]Kind{
	"EVENT": Event,
	"ACK":   Ack,
}

func (k Kind) String() string {
	switch k {
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	}
	return "UNKNOWN"
}

// Message is the application-visible part of an Event packet. Data is
// opaque to the protocol and passed through as-is.
type Message struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// Packet is the envelope exchanged between peers. ID is zero when the
// sender did not request an acknowledgment; allocated ids start at 1.
// Message is set only on Event packets, Data only on Ack packets.
type Packet struct {
	Kind    Kind     `json:"kind"`
	ID      int64    `json:"id,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    []any    `json:"data,omitempty"`

	// set when the wire form carried an id that is not a number; the
	// dispatcher drops such packets instead of guessing.
	invalidID bool
}

// UnmarshalJSON tolerates a malformed id field rather than failing the
// whole frame: the packet decodes, but is marked so dispatch ignores it.
// A misbehaving peer must not be able to crash the local process.
func (p *Packet) UnmarshalJSON(b []byte) error {
	var raw struct {
		Kind    Kind            `json:"kind"`
		ID      json.RawMessage `json:"id"`
		Message *Message        `json:"message"`
		Data    []any           `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.Message = raw.Message
	p.Data = raw.Data
	p.ID = 0
	p.invalidID = false

	if len(raw.ID) > 0 && string(raw.ID) != "null" {
		if err := json.Unmarshal(raw.ID, &p.ID); err != nil {
			p.invalidID = true
		}
	}
	return nil
}
