package repository

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// Index keys are encoded so that bytes.Compare on the encodings agrees with
// tuple order: numbers sort before strings, Infinity after everything. No
// encoding is a prefix of another one of the same arity.
const (
	tagNumber   byte = 0x10
	tagString   byte = 0x20
	tagInfinity byte = 0xF0
)

func encodeKey(key domain.Key) ([]byte, error) {
	var buf []byte
	for i, part := range key {
		switch v := part.(type) {
		case int64:
			buf = appendNumber(buf, v)
		case int:
			buf = appendNumber(buf, int64(v))
		case string:
			buf = append(buf, tagString)
			for j := 0; j < len(v); j++ {
				if v[j] == 0x00 {
					buf = append(buf, 0x00, 0xFF)
					continue
				}
				buf = append(buf, v[j])
			}
			buf = append(buf, 0x00, 0x01)
		case domain.Inf:
			buf = append(buf, tagInfinity)
		default:
			return nil, fmt.Errorf("unsupported key part %d of type %T", i, part)
		}
	}
	return buf, nil
}

func appendNumber(buf []byte, v int64) []byte {
	buf = append(buf, tagNumber)
	return binary.BigEndian.AppendUint64(buf, uint64(v)^(1<<63))
}

// compareKeys orders two key tuples.
func compareKeys(a, b domain.Key) (int, error) {
	ea, err := encodeKey(a)
	if err != nil {
		return 0, err
	}
	eb, err := encodeKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// keyParts splits a key into the string and number columns of the sql
// index table.
func keyParts(key domain.Key) (str string, num int64, err error) {
	for i, part := range key {
		switch v := part.(type) {
		case string:
			str = v
		case int64:
			num = v
		case int:
			num = int64(v)
		default:
			return "", 0, fmt.Errorf("unsupported key part %d of type %T", i, part)
		}
	}
	return str, num, nil
}
