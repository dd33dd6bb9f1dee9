package conn

import (
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader delivers its data in predetermined chunks.
type chunkReader struct {
	mu     sync.Mutex
	chunks [][]byte
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) SetReadDeadline(time.Time) error { return nil }

func readAll(t *testing.T, f *Framer) []string {
	t.Helper()
	var out []string
	for {
		msg, err := f.ReadLine(NoTimeout)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}

func TestFramerChunking(t *testing.T) {
	messages := []string{"init", "start 12_12 1000 main loop", "end 12_12 2000 main loop", "<STOP>"}
	wire := strings.Join(messages, "\n") + "\n"

	oneByte := make([]string, 0, len(wire))
	for i := 0; i < len(wire); i++ {
		oneByte = append(oneByte, wire[i:i+1])
	}

	tests := []struct {
		name    string
		chunks  []string
		bufSize int
	}{
		{"all at once", []string{wire}, 1024},
		{"one byte at a time", oneByte, 1024},
		{"split mid message", []string{wire[:7], wire[7:30], wire[30:]}, 1024},
		{"small buffer", []string{wire}, 8},
		{"small buffer one byte", oneByte, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(newChunkReader(tt.chunks...), tt.bufSize)
			assert.Equal(t, messages, readAll(t, f))
		})
	}
}

func TestFramerQueuesExtraMessages(t *testing.T) {
	r := newChunkReader("a\nb\nc\n")
	f := NewFramer(r, 64)

	msg, err := f.ReadLine(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, "a", msg)
	assert.Equal(t, 2, f.Buffered())

	r.mu.Lock()
	assert.Empty(t, r.chunks, "all data should have been consumed by one read")
	r.mu.Unlock()

	assert.Equal(t, []string{"b", "c"}, readAll(t, f))
}

func TestFramerMessageFillsBuffer(t *testing.T) {
	f := NewFramer(newChunkReader("12345678", "\nabcdefghijklmnopq\nz\n"), 8)
	assert.Equal(t, []string{"12345678", "abcdefghijklmnopq", "z"}, readAll(t, f))
}

func TestFramerSkipsEmptyLines(t *testing.T) {
	f := NewFramer(newChunkReader("\n\nx\n\n\ny\n"), 16)
	assert.Equal(t, []string{"x", "y"}, readAll(t, f))
}

func TestFramerReturnsTrailingDataOnEOF(t *testing.T) {
	f := NewFramer(newChunkReader("done\npartial"), 16)

	assert.Equal(t, []string{"done", "partial"}, readAll(t, f))

	_, err := f.ReadLine(NoTimeout)
	assert.ErrorIs(t, err, io.EOF)
}

// shutdownReader returns its data and then zero bytes with no error.
type shutdownReader struct{ data []byte }

func (r *shutdownReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *shutdownReader) SetReadDeadline(time.Time) error { return nil }

func TestFramerFlushesTailOnZeroRead(t *testing.T) {
	f := NewFramer(&shutdownReader{data: []byte("done\npartial")}, 16)

	assert.Equal(t, []string{"done", "partial"}, readAll(t, f))

	_, err := f.ReadLine(NoTimeout)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramerTimeoutKeepsState(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	f := NewFramer(r, 16)

	_, err = w.Write([]byte("hel"))
	require.NoError(t, err)

	_, err = f.ReadLine(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = w.Write([]byte("lo\n"))
	require.NoError(t, err)

	msg, err := f.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)
}
