package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/pkg/pool"
)

// gzipMagic первые байты gzip потока; JSON с них начинаться не может
var gzipMagic = []byte{0x1f, 0x8b}

// encodeColumn сериализует значение колонки, при compress сжимает gzip
func encodeColumn(column string, v interface{}, compress bool) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", column, err)
	}

	if compress {
		buf := pool.Global.GetBuffer()
		defer pool.Global.PutBuffer(buf)

		zw := pool.Global.GetGzipWriter(buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", column, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish %s compression: %w", column, err)
		}
		pool.Global.PutGzipWriter(zw)

		// буфер вернется в пул, поэтому копия
		data = append([]byte(nil), buf.Bytes()...)
	}

	metrics.MySQLPayloadBytes.WithLabelValues(column, strconv.FormatBool(compress)).Observe(float64(len(data)))
	return data, nil
}

// decodeColumn разбирает колонку; сжатие определяется по содержимому,
// поэтому строки, записанные с разным zip_data, читаются одинаково
func decodeColumn(column string, data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := pool.Global.GetGzipReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to open compressed %s: %w", column, err)
		}
		defer pool.Global.PutGzipReader(zr)
		defer zr.Close()

		data, err = io.ReadAll(zr)
		if err != nil {
			return fmt.Errorf("failed to decompress %s: %w", column, err)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", column, err)
	}
	return nil
}
