// Package command provides the sample text commands: write-text, which
// delivers a text to the slave and expects no response, and read-text,
// which asks the slave for a text.
package command

import (
	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/slave"
)

const (
	// CodeWriteText sends a text to the slave. No response is sent.
	CodeWriteText byte = 1
	// CodeReadText asks the slave for its text.
	CodeReadText byte = 2
)

// DefaultReadText is the text a slave answers read-text with unless
// configured otherwise.
const DefaultReadText = "Sample text from slave"

// WriteText returns a handler that passes the request body, as text, to sink
// and sends no response.
func WriteText(sink func(text string)) slave.HandlerFunc {
	return func(req frame.Frame) ([]byte, error) {
		if sink != nil {
			sink(string(req.Body))
		}

		return nil, nil
	}
}

// ReadText returns a handler that answers with text.
func ReadText(text string) slave.HandlerFunc {
	body := []byte(text)

	return func(frame.Frame) ([]byte, error) {
		return body, nil
	}
}

// Register installs the write-text and read-text handlers on s. An empty
// text selects DefaultReadText.
func Register(s *slave.Slave, sink func(text string), text string) {
	if text == "" {
		text = DefaultReadText
	}

	s.Handle(CodeWriteText, WriteText(sink))
	s.Handle(CodeReadText, ReadText(text))
}

// WriteTextNoResponse is a master.NoResponseFunc for deployments where
// write-text requests are never answered.
func WriteTextNoResponse(_, code byte) bool {
	return code == CodeWriteText
}
