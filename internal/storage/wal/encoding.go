package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Record framing (little-endian):
//   - Payload length (4 bytes)
//   - CRC32 IEEE of the payload (4 bytes)
//   - Payload: protobuf wire fields
//     1: timestamp_ms (fixed64)
//     2: value        (fixed64, IEEE 754 bits)
//     3: max          (fixed64, IEEE 754 bits, omitted when equal to value)
//
// Unknown fields are skipped on decode so later versions can add fields.

const (
	fieldTimestamp protowire.Number = 1
	fieldValue     protowire.Number = 2
	fieldMax       protowire.Number = 3

	// maxPayloadSize bounds a record; anything larger is treated as corruption.
	maxPayloadSize = 1024
)

// encodeSample encodes a sample payload.
func encodeSample(buf []byte, s types.Sample) []byte {
	buf = protowire.AppendTag(buf, fieldTimestamp, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, uint64(s.TimestampMs))
	buf = protowire.AppendTag(buf, fieldValue, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(s.Value))
	if math.Float64bits(s.Max) != math.Float64bits(s.Value) {
		buf = protowire.AppendTag(buf, fieldMax, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(s.Max))
	}
	return buf
}

// decodeSample decodes a sample payload.
func decodeSample(data []byte) (types.Sample, error) {
	var (
		s               types.Sample
		hasTs, hasValue bool
		hasMax          bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return types.Sample{}, fmt.Errorf("tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldTimestamp && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return types.Sample{}, fmt.Errorf("timestamp: %w", protowire.ParseError(m))
			}
			s.TimestampMs = int64(v)
			hasTs = true
			n = m
		case num == fieldValue && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return types.Sample{}, fmt.Errorf("value: %w", protowire.ParseError(m))
			}
			s.Value = math.Float64frombits(v)
			hasValue = true
			n = m
		case num == fieldMax && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return types.Sample{}, fmt.Errorf("max: %w", protowire.ParseError(m))
			}
			s.Max = math.Float64frombits(v)
			hasMax = true
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return types.Sample{}, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if !hasTs || !hasValue {
		return types.Sample{}, fmt.Errorf("missing required field")
	}
	if !hasMax {
		s.Max = s.Value
	}
	return s, nil
}

// appendRecord frames a sample as a complete record.
func appendRecord(buf []byte, s types.Sample) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, recordHeaderSize)...)
	buf = encodeSample(buf, s)

	payload := buf[start+recordHeaderSize:]
	binary.LittleEndian.PutUint32(buf[start:start+4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[start+4:start+8], crc32.ChecksumIEEE(payload))
	return buf
}
