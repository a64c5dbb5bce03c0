package protocol

import (
	"crypto/sha256"
	"strconv"
	"unicode/utf16"
)

// HashTask returns the 32-byte commitment binding a task's description and
// ordered criteria. The digest is SHA-256 over CanonicalTask and is the
// value stored on-ledger and used to correlate with off-chain task content,
// so it must be byte-identical across every implementation of the protocol.
func HashTask(t Task) [32]byte {
	return sha256.Sum256(CanonicalTask(t))
}

// CanonicalTask renders the canonical serialization hashed by HashTask:
// a JSON object {"description": ..., "criteria": [...]} with
//
//   - a single space after every ':' and ',' separator,
//   - fields in fixed order: description, criteria; within a criterion:
//     type, description, then target_value only when set,
//   - every non-ASCII and control character escaped as \uXXXX (astral code
//     points as UTF-16 surrogate pairs); printable ASCII kept literal.
//
// Metadata is never part of the commitment. An empty criteria list
// serializes as "[]" and hashes deterministically; it is not the same
// commitment as an absent list because there is no absent list.
func CanonicalTask(t Task) []byte {
	buf := make([]byte, 0, 64+32*len(t.Criteria))
	buf = append(buf, `{"description": `...)
	buf = appendJSONString(buf, t.Description)
	buf = append(buf, `, "criteria": [`...)
	for i, c := range t.Criteria {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, `{"type": `...)
		buf = appendJSONString(buf, string(c.Type))
		buf = append(buf, `, "description": `...)
		buf = appendJSONString(buf, c.Description)
		if c.TargetValue != nil {
			buf = append(buf, `, "target_value": `...)
			buf = strconv.AppendInt(buf, *c.TargetValue, 10)
		}
		buf = append(buf, '}')
	}
	buf = append(buf, "]}"...)
	return buf
}

const hexDigits = "0123456789abcdef"

// appendJSONString appends s as a JSON string literal in the canonical
// escaping: ASCII-only output, \uXXXX for everything outside 0x20..0x7e
// except the short escapes for quote, backslash, \b \t \n \f \r.
func appendJSONString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch {
		case r == '"':
			dst = append(dst, '\\', '"')
		case r == '\\':
			dst = append(dst, '\\', '\\')
		case r == '\b':
			dst = append(dst, '\\', 'b')
		case r == '\t':
			dst = append(dst, '\\', 't')
		case r == '\n':
			dst = append(dst, '\\', 'n')
		case r == '\f':
			dst = append(dst, '\\', 'f')
		case r == '\r':
			dst = append(dst, '\\', 'r')
		case r >= 0x20 && r < 0x7f:
			dst = append(dst, byte(r))
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			dst = appendU16Escape(dst, uint16(hi))
			dst = appendU16Escape(dst, uint16(lo))
		default:
			dst = appendU16Escape(dst, uint16(r))
		}
	}
	return append(dst, '"')
}

func appendU16Escape(dst []byte, v uint16) []byte {
	return append(dst,
		'\\', 'u',
		hexDigits[v>>12&0xf],
		hexDigits[v>>8&0xf],
		hexDigits[v>>4&0xf],
		hexDigits[v&0xf],
	)
}
