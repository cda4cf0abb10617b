package table

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Cached payloads start with a codec byte.
const (
	codecRaw  byte = 0
	codecZstd byte = 1
)

// compressAbove is the encoded size from which payloads are compressed.
const compressAbove = 1 << 10

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodec returns the shared encoder and decoder. Both are safe for
// concurrent EncodeAll and DecodeAll calls.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

// statementKey identifies a statement with its arguments. Arguments are
// msgpack encoded, so argument lists that print alike never share a key.
func statementKey(query string, args []any) (string, error) {
	data, err := msgpack.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("table: encode statement arguments: %w", err)
	}
	return query + " " + hex.EncodeToString(data), nil
}

// encodeRows encodes selected row values for the row cache. Large
// payloads are zstd compressed when that makes them smaller.
func encodeRows(rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecRaw)
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(rows); err != nil {
		return nil, fmt.Errorf("table: encode cached rows: %w", err)
	}
	data := buf.Bytes()
	if len(data) < compressAbove {
		return data, nil
	}
	zenc, _, err := zstdCodec()
	if err != nil {
		return nil, fmt.Errorf("table: encode cached rows: %w", err)
	}
	compressed := zenc.EncodeAll(data[1:], []byte{codecZstd})
	if len(compressed) >= len(data) {
		return data, nil
	}
	return compressed, nil
}

// decodeRows decodes cached row values. Integers decode as int64 and
// floats as float64, the types database drivers scan into.
func decodeRows(data []byte) ([]map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("table: decode cached rows: empty payload")
	}
	payload := data[1:]
	switch data[0] {
	case codecRaw:
	case codecZstd:
		_, zdec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("table: decode cached rows: %w", err)
		}
		if payload, err = zdec.DecodeAll(payload, nil); err != nil {
			return nil, fmt.Errorf("table: decode cached rows: %w", err)
		}
	default:
		return nil, fmt.Errorf("table: decode cached rows: unknown codec %#x", data[0])
	}
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.UseLooseInterfaceDecoding(true)
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("table: decode cached rows: %w", err)
	}
	for _, r := range rows {
		for k, v := range r {
			r[k] = normalize(v)
		}
	}
	return rows, nil
}

// normalize widens decoded numbers; small integers may come back as
// unsigned or narrow types depending on their encoding.
func normalize(v any) any {
	switch v := v.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	case float32:
		return float64(v)
	default:
		return v
	}
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process atlas.Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements atlas.Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	return e.value, nil
}

// Set implements atlas.Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// DeletePrefix implements atlas.Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
