package agentstream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Event is one decoded frame of the completion stream.
type Event struct {
	Name string
	Data []byte
}

// Decoder reads frames incrementally: `event:` and `data:` lines, terminated
// by a blank line. Multiple data lines are joined with "\n".
type Decoder struct {
	r    *bufio.Reader
	done bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next complete frame. A frame still open when the body ends
// is flushed before io.EOF is returned.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}

	var (
		name    string
		data    []string
		hasData bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		atEOF := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if name != "" || hasData {
				return Event{Name: name, Data: []byte(strings.Join(data, "\n"))}, nil
			}
			if atEOF {
				d.done = true
				return Event{}, io.EOF
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "":
			// comment line
		case "event":
			name = value
		case "data":
			data = append(data, value)
			hasData = true
		}

		if atEOF {
			d.done = true
			if name != "" || hasData {
				return Event{Name: name, Data: []byte(strings.Join(data, "\n"))}, nil
			}
			return Event{}, io.EOF
		}
	}
}

func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimPrefix(line[idx+1:], " ")
}
