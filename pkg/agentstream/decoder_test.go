package agentstream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, body string) []Event {
	t.Helper()
	dec := NewDecoder(strings.NewReader(body))
	var out []Event
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestDecoder_Frames(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Event
	}{
		{
			name: "single frame",
			body: "event: delta\ndata: {\"a\":1}\n\n",
			want: []Event{{Name: "delta", Data: []byte(`{"a":1}`)}},
		},
		{
			name: "multi-line data and crlf",
			body: "event: message\r\ndata: line one\r\ndata: line two\r\n\r\n",
			want: []Event{{Name: "message", Data: []byte("line one\nline two")}},
		},
		{
			name: "comments and extra blank lines",
			body: ": keepalive\n\n\nevent: done\ndata:{}\n\n",
			want: []Event{{Name: "done", Data: []byte("{}")}},
		},
		{
			name: "trailing frame without blank line",
			body: "event: thread\ndata: {\"thread_id\":\"t\"}",
			want: []Event{{Name: "thread", Data: []byte(`{"thread_id":"t"}`)}},
		},
		{
			name: "unnamed data frame",
			body: "data: orphan\n\n",
			want: []Event{{Name: "", Data: []byte("orphan")}},
		},
		{
			name: "empty body",
			body: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.body))
		})
	}
}

func TestDecoder_Incremental(t *testing.T) {
	pr, pw := io.Pipe()
	dec := NewDecoder(pr)

	go func() {
		pw.Write([]byte("event: delta\n"))
		pw.Write([]byte("data: {\"delta\":\"hi\"}\n"))
		pw.Write([]byte("\n"))
	}()

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "delta", ev.Name)

	pw.Close()
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}
