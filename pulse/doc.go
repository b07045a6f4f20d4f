// Package pulse implements a request/acknowledgment layer for named
// events over an already-connected duplex transport. A Dispatcher
// shapes packets, tracks pending acknowledgments and routes inbound
// packets by kind; Socket and App bind it to websocket connections and
// local handlers.
package pulse
