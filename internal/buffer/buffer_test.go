package buffer_test

import (
	"context"
	"testing"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndConsume(t *testing.T) {
	m := buffer.NewManager()
	defer m.Close()
	ctx := context.Background()
	key := buffer.StreamKey{SessionID: 1, StreamID: 4}

	require.NoError(t, m.Append(ctx, key, []byte{0x01, 0x02}))
	require.NoError(t, m.Append(ctx, key, []byte{0x03}))

	data, err := m.Bytes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data, "输入两段字节, 期望拼接后完整返回")

	require.NoError(t, m.Consume(ctx, key, 2))
	data, err = m.Bytes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, data, "期望消费2字节后只剩最后1字节")
}

func TestConsumeMoreThanBuffered(t *testing.T) {
	m := buffer.NewManager()
	defer m.Close()
	ctx := context.Background()
	key := buffer.StreamKey{SessionID: 2, StreamID: 0}

	require.NoError(t, m.Append(ctx, key, []byte{0xAA}))
	require.NoError(t, m.Consume(ctx, key, 10))

	data, err := m.Bytes(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBytesReturnsCopy(t *testing.T) {
	m := buffer.NewManager()
	defer m.Close()
	ctx := context.Background()
	key := buffer.StreamKey{SessionID: 3, StreamID: 8}

	require.NoError(t, m.Append(ctx, key, []byte{0x10, 0x20}))
	data, err := m.Bytes(ctx, key)
	require.NoError(t, err)
	data[0] = 0xFF

	again, err := m.Bytes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20}, again, "期望返回值是副本, 调用方修改不影响缓冲区")
}

func TestReleaseStream(t *testing.T) {
	m := buffer.NewManager()
	defer m.Close()
	ctx := context.Background()
	key := buffer.StreamKey{SessionID: 4, StreamID: 12}

	require.NoError(t, m.Append(ctx, key, []byte{0x01}))
	require.NoError(t, m.ReleaseStream(ctx, key))

	data, err := m.Bytes(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestReleaseSession(t *testing.T) {
	m := buffer.NewManager()
	defer m.Close()
	ctx := context.Background()
	keyA := buffer.StreamKey{SessionID: 5, StreamID: 0}
	keyB := buffer.StreamKey{SessionID: 5, StreamID: 4}
	keyOther := buffer.StreamKey{SessionID: 6, StreamID: 0}

	require.NoError(t, m.Append(ctx, keyA, []byte{0x01}))
	require.NoError(t, m.Append(ctx, keyB, []byte{0x02}))
	require.NoError(t, m.Append(ctx, keyOther, []byte{0x03}))

	require.NoError(t, m.ReleaseSession(ctx, 5))

	data, err := m.Bytes(ctx, keyA)
	require.NoError(t, err)
	assert.Empty(t, data)
	data, err = m.Bytes(ctx, keyB)
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = m.Bytes(ctx, keyOther)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, data, "期望其他会话的缓冲区不受影响")
}
