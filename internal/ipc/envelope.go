package ipc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope is the outer tagged wrapper every frame payload carries: a Kind
// discriminator plus the kind-specific body, itself produced by that kind's
// own marshalX function. This mirrors a oneof field at the wire level
// without requiring generated code.
type Envelope struct {
	Kind Kind
	Body []byte
}

const (
	envFieldKind protowire.Number = 1
	envFieldBody protowire.Number = 2
)

// MarshalEnvelope appends the wire encoding of e to buf and returns the
// extended slice, following the append-style marshal functions used
// throughout this package.
func MarshalEnvelope(buf []byte, e Envelope) []byte {
	buf = protowire.AppendTag(buf, envFieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.Kind))
	buf = protowire.AppendTag(buf, envFieldBody, protowire.BytesType)
	buf = protowire.AppendBytes(buf, e.Body)
	return buf
}

// UnmarshalEnvelope decodes one Envelope from buf. Unknown fields are
// skipped rather than rejected, so a newer peer may add fields a receiver
// doesn't yet understand.
func UnmarshalEnvelope(buf []byte) (Envelope, error) {
	var e Envelope
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Envelope{}, fmt.Errorf("ipc: envelope: bad tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		switch num {
		case envFieldKind:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return Envelope{}, fmt.Errorf("ipc: envelope: bad kind: %w", protowire.ParseError(n))
			}
			e.Kind = Kind(v)
			buf = buf[n:]
		case envFieldBody:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return Envelope{}, fmt.Errorf("ipc: envelope: bad body: %w", protowire.ParseError(n))
			}
			e.Body = append([]byte(nil), v...)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return Envelope{}, fmt.Errorf("ipc: envelope: skip unknown field: %w", protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return e, nil
}
