package conn

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSAcceptorRoundTrip(t *testing.T) {
	a := NewWSAcceptor("", 1, 32)
	srv := httptest.NewServer(a)
	defer srv.Close()
	defer a.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	clientCh := make(chan *WSConn, 1)
	go func() {
		c, err := DialWS(url, 32, time.Second)
		if err == nil {
			clientCh <- c
		}
		close(clientCh)
	}()

	server, err := a.Accept(0, 2*time.Second)
	require.NoError(t, err)
	client := <-clientCh
	require.NotNil(t, client)
	defer client.Close()
	defer server.Close()

	_, err = server.ReadLine(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, client.WriteLine("start 1_1 10 region", true))
	require.NoError(t, client.Write([]byte("end 1_1 20 reg")))
	require.NoError(t, client.Write([]byte("ion\n")))

	for _, want := range []string{"start 1_1 10 region", "end 1_1 20 region"} {
		msg, err := server.ReadLine(time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, msg)
	}

	assert.Panics(t, func() { _, _ = a.Accept(0, time.Millisecond) })
}

func TestWSAcceptorTimeout(t *testing.T) {
	a := NewWSAcceptor("ws://unused", UnlimitedAccepted, 0)
	defer a.Close()

	_, err := a.Accept(0, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "ws://unused", a.Instructions())
}
