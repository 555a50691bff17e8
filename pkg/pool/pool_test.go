package pool

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferIsEmptyAfterReuse(t *testing.T) {
	buf := Global.GetBuffer()
	buf.WriteString("stale data")
	Global.PutBuffer(buf)

	again := Global.GetBuffer()
	assert.Zero(t, again.Len())
	Global.PutBuffer(again)
}

func TestPutBuffer_DropsOversized(t *testing.T) {
	p := &ObjectPools{}
	big := bytes.NewBuffer(make([]byte, 0, maxPooledBuffer+1))
	p.PutBuffer(big)
	assert.Nil(t, p.bufferPool.Get())
}

func TestGzipRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"port_code":"JPOSA"},`), 200)

	for i := 0; i < 3; i++ {
		var compressed bytes.Buffer
		zw := Global.GetGzipWriter(&compressed)
		_, err := zw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		Global.PutGzipWriter(zw)

		assert.Less(t, compressed.Len(), len(payload))

		zr, err := Global.GetGzipReader(bytes.NewReader(compressed.Bytes()))
		require.NoError(t, err)
		out, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.NoError(t, zr.Close())
		Global.PutGzipReader(zr)

		assert.Equal(t, payload, out, "round %d", i)
	}
}

func TestGetGzipReader_InvalidStream(t *testing.T) {
	_, err := Global.GetGzipReader(bytes.NewReader([]byte("not gzip")))
	assert.Error(t, err)
}
