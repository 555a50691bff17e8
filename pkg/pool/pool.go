package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// maxPooledBuffer буферы крупнее не возвращаются в пул, чтобы годовой снимок не держал память
const maxPooledBuffer = 4 << 20

// ObjectPools содержит пулы объектов для сериализации снимков SMH
type ObjectPools struct {
	bufferPool     sync.Pool
	gzipWriterPool sync.Pool
	gzipReaderPool sync.Pool
}

// Global пулы объектов
var Global = &ObjectPools{
	bufferPool: sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 64<<10))
		},
	},
	gzipWriterPool: sync.Pool{
		New: func() interface{} {
			// уровень валиден, ошибки быть не может
			zw, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
			return zw
		},
	},
}

// GetBuffer получает пустой буфер из пула
func (p *ObjectPools) GetBuffer() *bytes.Buffer {
	buf := p.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer возвращает буфер в пул
func (p *ObjectPools) PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	p.bufferPool.Put(buf)
}

// GetGzipWriter получает gzip writer (BestSpeed), пишущий в w
func (p *ObjectPools) GetGzipWriter(w io.Writer) *gzip.Writer {
	zw := p.gzipWriterPool.Get().(*gzip.Writer)
	zw.Reset(w)
	return zw
}

// PutGzipWriter возвращает writer в пул; Close должен быть уже вызван
func (p *ObjectPools) PutGzipWriter(zw *gzip.Writer) {
	if zw == nil {
		return
	}
	zw.Reset(io.Discard)
	p.gzipWriterPool.Put(zw)
}

// GetGzipReader получает gzip reader для r
func (p *ObjectPools) GetGzipReader(r io.Reader) (*gzip.Reader, error) {
	if zr, ok := p.gzipReaderPool.Get().(*gzip.Reader); ok {
		if err := zr.Reset(r); err != nil {
			p.gzipReaderPool.Put(zr)
			return nil, err
		}
		return zr, nil
	}
	return gzip.NewReader(r)
}

// PutGzipReader возвращает reader в пул
func (p *ObjectPools) PutGzipReader(zr *gzip.Reader) {
	if zr == nil {
		return
	}
	p.gzipReaderPool.Put(zr)
}
