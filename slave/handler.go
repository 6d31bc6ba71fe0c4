package slave

import "github.com/arloliu/go-mbserial/frame"

// Handler processes the requests of one command code.
//
// Handle returns the body of the response. A nil body sends no response;
// an empty non-nil body sends a response without data. Responses to
// broadcast requests are never sent. An error is logged and counted, and no
// response is sent.
type Handler interface {
	Handle(req frame.Frame) ([]byte, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(req frame.Frame) ([]byte, error)

func (f HandlerFunc) Handle(req frame.Frame) ([]byte, error) {
	return f(req)
}

// Handle registers h for the given command code, replacing any previous
// handler. A nil h removes the registration. It is safe to call while the
// slave is listening.
func (s *Slave) Handle(code byte, h Handler) {
	if h == nil {
		s.Unhandle(code)
		return
	}

	s.handlers.Store(code, h)
}

// HandleFunc registers fn for the given command code.
func (s *Slave) HandleFunc(code byte, fn func(req frame.Frame) ([]byte, error)) {
	if fn == nil {
		s.Unhandle(code)
		return
	}

	s.Handle(code, HandlerFunc(fn))
}

// Unhandle removes the handler of the given command code.
func (s *Slave) Unhandle(code byte) {
	s.handlers.Delete(code)
}

// Handles reports whether a handler is registered for code.
func (s *Slave) Handles(code byte) bool {
	_, ok := s.handlers.Load(code)
	return ok
}
