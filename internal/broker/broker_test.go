package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/edgegateway/internal/message"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	address := "inproc://broker-test-1"
	log := obslog.Default()

	pub, err := PublisherCreate(address, log)
	require.NoError(t, err)
	defer pub.Destroy()

	sub, err := SubscriberCreate(address, log)
	require.NoError(t, err)
	defer sub.Destroy()

	received := make(chan *message.Message, 1)
	require.NoError(t, sub.Subscribe("orders.", func(msg *message.Message, context any) {
		received <- msg
	}, nil))
	require.Equal(t, StateRunning, sub.State())

	time.Sleep(10 * time.Millisecond)

	msg, err := message.Create([]byte("hello"), map[string]string{"id": "1"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish("orders.created", msg, 0))
	msg.Destroy()

	select {
	case got := <-received:
		require.Equal(t, []byte("hello"), got.Content())
		require.Equal(t, "1", got.Properties()["id"])
		got.Destroy()
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPrefixMatchingIncludesLongerTopics(t *testing.T) {
	address := "inproc://broker-test-2"
	log := obslog.Default()

	pub, err := PublisherCreate(address, log)
	require.NoError(t, err)
	defer pub.Destroy()

	sub, err := SubscriberCreate(address, log)
	require.NoError(t, err)
	defer sub.Destroy()

	var mu sync.Mutex
	var delivered []string
	require.NoError(t, sub.Subscribe("foo", func(msg *message.Message, context any) {
		mu.Lock()
		delivered = append(delivered, string(msg.Content()))
		mu.Unlock()
		msg.Destroy()
	}, nil))

	time.Sleep(10 * time.Millisecond)

	for _, topic := range []string{"foobar", "foo", "bar"} {
		msg, err := message.Create([]byte(topic), nil)
		require.NoError(t, err)
		require.NoError(t, pub.Publish(topic, msg, 0))
		msg.Destroy()
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"foobar", "foo"}, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	address := "inproc://broker-test-3"
	log := obslog.Default()

	pub, err := PublisherCreate(address, log)
	require.NoError(t, err)
	defer pub.Destroy()

	sub, err := SubscriberCreate(address, log)
	require.NoError(t, err)

	var count int
	var mu sync.Mutex
	require.NoError(t, sub.Subscribe("x", func(msg *message.Message, context any) {
		mu.Lock()
		count++
		mu.Unlock()
		msg.Destroy()
	}, nil))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Unsubscribe())
	require.Equal(t, StateStopped, sub.State())

	msg, err := message.Create(nil, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("x.1", msg, 0))
	msg.Destroy()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestSubscribeRejectsInvalidArgs(t *testing.T) {
	sub, err := SubscriberCreate("inproc://broker-test-4", obslog.Default())
	require.NoError(t, err)
	defer sub.Destroy()

	require.Error(t, sub.Subscribe("x", nil, nil))
	require.Equal(t, StateConnected, sub.State())
}
