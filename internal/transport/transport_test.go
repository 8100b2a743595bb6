package transport

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInprocPubSub(t *testing.T) {
	address := "inproc://test-topic-1"
	pub, err := Bind(address)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Dial(address)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Subscribe("x"))

	// Give the subscriber a moment to register before publishing.
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, pub.Send([]byte("x.1\x00payload")))

	got, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, "x.1\x00payload", string(got))
}

func TestInprocPrefixIsolation(t *testing.T) {
	address := "inproc://test-topic-2"
	pub, err := Bind(address)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Dial(address)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Subscribe("a"))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, pub.Send([]byte("b.1\x00nope")))
	require.NoError(t, pub.Send([]byte("a.1\x00yes")))

	got, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, "a.1\x00yes", string(got))
}

func TestInprocCloseUnblocksRecv(t *testing.T) {
	address := "inproc://test-topic-3"
	sub, err := Dial(address)
	require.NoError(t, err)
	require.NoError(t, sub.Subscribe(""))

	done := make(chan error, 1)
	go func() {
		_, err := sub.Recv()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestUnixPubSub(t *testing.T) {
	sockPath := fmt.Sprintf("%s/edgegateway-test-%d.sock", t.TempDir(), time.Now().UnixNano())
	address := "unix://" + sockPath

	pub, err := Bind(address)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Dial(address)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Subscribe("x"))

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, pub.Send([]byte("x.1\x00hello")))

	got, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, "x.1\x00hello", string(got))
}
