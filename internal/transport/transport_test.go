package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnTransportWriteAndRead(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	st := NewConnTransport(server)
	ct := NewConnTransport(client)

	go func() {
		_ = st.Write([]byte("hello\n"))
	}()

	line, err := ct.Reader().ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "hello\n", line)
}

func TestConnTransportDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ct := NewConnTransport(client)
	require.NoError(t, ct.SetReadDeadline(time.Now().Add(10*time.Millisecond)))

	_, err := ct.Reader().ReadByte()
	require.Error(t, err)
}

func TestReaderIsStable(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ct := NewConnTransport(client)
	var r1, r2 *bufio.Reader = ct.Reader(), ct.Reader()
	require.Same(t, r1, r2)
}
