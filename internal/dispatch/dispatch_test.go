package dispatch_test

import (
	"context"
	"testing"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlDispatcherRoundTrip(t *testing.T) {
	d := dispatch.NewControlDispatcher()
	defer d.Close()
	ctx := context.Background()

	recv, err := d.Set(ctx, 1)
	require.NoError(t, err)

	send, err := d.Get(ctx, 1)
	require.NoError(t, err)

	frame := []byte{0x40, 0x02, 0x01, 0x02}
	send <- frame
	assert.Equal(t, frame, <-recv, "期望接收端收到发送端投递的帧")
}

func TestControlDispatcherGetMiss(t *testing.T) {
	d := dispatch.NewControlDispatcher()
	defer d.Close()

	_, err := d.Get(context.Background(), 42)
	assert.ErrorIs(t, err, moq.ErrNotFound, "期望未注册会话返回ErrNotFound")
}

func TestControlDispatcherDeleteClosesChannel(t *testing.T) {
	d := dispatch.NewControlDispatcher()
	defer d.Close()
	ctx := context.Background()

	recv, err := d.Set(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, d.Delete(ctx, 2))

	_, open := <-recv
	assert.False(t, open, "期望Delete后通道被关闭, 写协程得以退出")

	_, err = d.Get(ctx, 2)
	assert.ErrorIs(t, err, moq.ErrNotFound)
}

func TestSignalDispatcherDeliver(t *testing.T) {
	d := dispatch.NewSignalDispatcher()
	defer d.Close()
	ctx := context.Background()

	recv, err := d.Set(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, d.Signal(ctx, 3, dispatch.Signal{Code: 0x3, Reason: "protocol violation"}))
	got := <-recv
	assert.Equal(t, uint64(0x3), got.Code)
	assert.Equal(t, "protocol violation", got.Reason)
}

func TestSignalDispatcherMissAndOverflow(t *testing.T) {
	d := dispatch.NewSignalDispatcher()
	defer d.Close()
	ctx := context.Background()

	err := d.Signal(ctx, 9, dispatch.Signal{Code: 0x1})
	assert.ErrorIs(t, err, moq.ErrNotFound)

	recv, err := d.Set(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, d.Signal(ctx, 10, dispatch.Signal{Code: 0x1, Reason: "first"}))
	require.NoError(t, d.Signal(ctx, 10, dispatch.Signal{Code: 0x2, Reason: "second"}))

	got := <-recv
	assert.Equal(t, "first", got.Reason, "期望通道满时丢弃后续信号, 保留第一个")
}

func TestSignalDispatcherDelete(t *testing.T) {
	d := dispatch.NewSignalDispatcher()
	defer d.Close()
	ctx := context.Background()

	_, err := d.Set(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, d.Delete(ctx, 4))

	err = d.Signal(ctx, 4, dispatch.Signal{Code: 0x1})
	assert.ErrorIs(t, err, moq.ErrNotFound)
}
