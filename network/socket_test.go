package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewNetSocket(t *testing.T) {
	ns, err := NewNetSocketFrom("127.0.0.1:0", true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ns.LocalAddr().Port(), uint16(49152))
	require.NoError(t, ns.Close())
	require.NoError(t, ns.Close())

	_, _, err = ns.ReadFrom(make([]byte, 16))
	require.ErrorIs(t, err, net.ErrClosed)
	require.ErrorIs(t, ns.WriteTo(ns.LocalAddr(), []byte{1}), net.ErrClosed)
}

func TestNetSocketNonBlocking(t *testing.T) {
	require := require.New(t)

	a, err := NewNetSocketFrom("127.0.0.1:0")
	require.NoError(err)
	defer a.Close()
	b, err := NewNetSocketFrom("127.0.0.1:0")
	require.NoError(err)
	defer b.Close()

	buf := make([]byte, 64)
	n, _, err := b.ReadFrom(buf)
	require.NoError(err)
	require.Zero(n)

	require.NoError(a.WriteTo(b.LocalAddr(), []byte("ping")))

	require.Eventually(func() bool {
		n, _, err = b.ReadFrom(buf)
		return err == nil && n > 0
	}, time.Second, time.Millisecond)
	require.Equal("ping", string(buf[:n]))
}
