package pulse

// Namespace scopes handler registration and broadcasts under a shared
// event-name prefix. Namespaces nest by concatenating prefixes.
type Namespace struct {
	app    *App
	prefix string
}

func (ns *Namespace) On(event string, args ...any) *Namespace {
	if len(args) == 0 {
		return ns
	}

	handler, ok := args[len(args)-1].(func(*Request) error)
	if !ok {
		return ns
	}
	var middleware []MiddlewareFunc

	if len(args) > 1 {
		for _, m := range args[:len(args)-1] {
			middleware = append(middleware, m.(MiddlewareFunc))
		}
	}

	ns.app.handlers.Store(ns.prefix+event, &handlerEntry{
		handler:    handler,
		middleware: middleware,
	})

	return ns
}

// Broadcast emits a prefixed event to the given room, tag or all
// sockets.
func (ns *Namespace) Broadcast(event string, data any, to string) {
	ns.app.Broadcast(ns.prefix+event, data, to)
}

func (ns *Namespace) Namespace(prefix string) *Namespace {
	return &Namespace{
		app:    ns.app,
		prefix: ns.prefix + prefix,
	}
}
