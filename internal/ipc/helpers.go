package ipc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The helpers below give every concrete message's marshalX/unmarshalX pair
// a common vocabulary for the field shapes the protocol actually uses:
// scalar strings/ints/bools, inline byte blobs, repeated strings, and
// repeated sub-messages. Each marshalX function in messages.go is still
// hand-written per type, same as the teacher's uapi/marshal.go, but these
// keep that hand-writing from degenerating into copy-pasted tag plumbing.

func appendString(buf []byte, num protowire.Number, s string) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, s)
}

func appendBytes(buf []byte, num protowire.Number, b []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, b)
}

func appendVarint(buf []byte, num protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBool(buf []byte, num protowire.Number, v bool) []byte {
	var i uint64
	if v {
		i = 1
	}
	return appendVarint(buf, num, i)
}

func appendSubmessage(buf []byte, num protowire.Number, body []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, body)
}

// fieldVisitor is called once per top-level field while decoding a
// message; implementations switch on num and consume the matching type,
// ignoring fields they don't recognize.
type fieldVisitor func(num protowire.Number, typ protowire.Type, buf []byte) (n int, err error)

func decodeFields(buf []byte, visit fieldVisitor) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("ipc: bad tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		consumed, err := visit(num, typ, buf)
		if err != nil {
			return err
		}
		if consumed < 0 {
			consumed = protowire.ConsumeFieldValue(num, typ, buf)
			if consumed < 0 {
				return fmt.Errorf("ipc: skip unknown field %d: %w", num, protowire.ParseError(consumed))
			}
		}
		buf = buf[consumed:]
	}
	return nil
}

func consumeString(buf []byte) (string, int, error) {
	v, n := protowire.ConsumeString(buf)
	if n < 0 {
		return "", 0, fmt.Errorf("ipc: bad string: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(buf []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(buf)
	if n < 0 {
		return nil, 0, fmt.Errorf("ipc: bad bytes: %w", protowire.ParseError(n))
	}
	return append([]byte(nil), v...), n, nil
}

func consumeVarint(buf []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, fmt.Errorf("ipc: bad varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
