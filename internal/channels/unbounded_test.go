package channels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded_PublishNeverBlocks(t *testing.T) {
	c := NewUnbounded[int]()
	tx := c.Sender()
	rx := c.Receiver()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			tx.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing without a consumer blocked")
	}
	assert.Equal(t, 10_000, c.Len())

	v, err := rx.Recv()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestUnbounded_RecvWaitsForPublish(t *testing.T) {
	c := NewUnbounded[string]()
	tx := c.Sender()
	rx := c.Receiver()

	got := make(chan string, 1)
	go func() {
		v, err := rx.Recv()
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, tx.Publish("sample"))

	select {
	case v := <-got:
		assert.Equal(t, "sample", v)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by publish")
	}
}

func TestUnbounded_DisconnectsAfterAllSendersClose(t *testing.T) {
	c := NewUnbounded[int]()
	tx1 := c.Sender()
	tx2 := c.Sender()
	rx := c.Receiver()

	tx1.Publish(1)
	tx1.Close()
	tx2.Publish(2)

	errc := make(chan error, 1)
	go func() {
		for {
			if _, err := rx.Recv(); err != nil {
				errc <- err
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	tx2.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("receiver did not observe the last sender closing")
	}
	assert.False(t, tx2.Publish(3))
}

func TestUnbounded_PublishDroppedWithoutReceiver(t *testing.T) {
	c := NewUnbounded[int]()
	tx := c.Sender()
	rx := c.Receiver()

	rx.Close()
	assert.False(t, tx.Publish(1))
	assert.Equal(t, 0, c.Len())
}
