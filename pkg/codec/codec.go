// Package codec turns save envelopes and checkpoints into bytes for storage.
// Payloads are JSON, optionally zstd compressed. Decoding detects
// compression from the zstd frame magic, so readers need no metadata.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encOnce sync.Once
	encoder *zstd.Encoder
	encErr  error

	decOnce sync.Once
	decoder *zstd.Decoder
	decErr  error
)

func zstdEncoder() (*zstd.Encoder, error) {
	encOnce.Do(func() {
		encoder, encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder, encErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	decOnce.Do(func() {
		decoder, decErr = zstd.NewReader(nil)
	})
	return decoder, decErr
}

// Marshal encodes v as JSON, compressing it when compression is
// domain.CompressionZstd. An empty compression means none.
func Marshal(v any, compression string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Compress(raw, compression)
}

// Unmarshal decodes a payload produced by Marshal into v.
//
// Numbers held in untyped values keep their exact value: integers decode
// to int64 (or stay json.Number when they overflow it) and the rest to
// float64. Re-encoding the result reproduces the original bytes, which
// checksums rely on.
func Unmarshal(data []byte, v any) error {
	raw, err := Decompress(data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	normalize(reflect.ValueOf(v))
	return nil
}

// normalize replaces json.Number values reachable from v.
func normalize(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			normalize(v.Elem())
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				normalize(v.Field(i))
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := range v.Len() {
			normalize(v.Index(i))
		}
	case reflect.Map:
		if v.IsNil() {
			return
		}
		elem := v.Type().Elem()
		for _, k := range v.MapKeys() {
			e := reflect.New(elem).Elem()
			e.Set(v.MapIndex(k))
			normalize(e)
			v.SetMapIndex(k, e)
		}
	case reflect.Interface:
		if v.IsNil() || !v.CanSet() {
			return
		}
		v.Set(reflect.ValueOf(number(v.Elem().Interface())))
	}
}

// number converts json.Number leaves of an untyped JSON value.
func number(x any) any {
	switch t := x.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := t.Int64(); err == nil {
				return i
			}
			return t
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = number(e)
		}
	case []any:
		for i, e := range t {
			t[i] = number(e)
		}
	}
	return x
}

// Compress applies the named compression to raw bytes.
func Compress(raw []byte, compression string) ([]byte, error) {
	switch compression {
	case "", domain.CompressionNone:
		return raw, nil
	case domain.CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

// Decompress returns the raw JSON of a payload, inflating it if needed.
func Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	return raw, nil
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Compression names the compression used by data.
func Compression(data []byte) string {
	if IsCompressed(data) {
		return domain.CompressionZstd
	}
	return domain.CompressionNone
}
