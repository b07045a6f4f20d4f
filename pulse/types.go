package pulse

type HandlerFunc func(*Request) error
type MiddlewareFunc func(*Request, NextFunc) error
type NextFunc func() error

type handlerEntry struct {
	handler    HandlerFunc
	middleware []MiddlewareFunc
}
