// Record framing follows ToyTLV (MIT licence) by Victor Grishchenko, 2024
// https://github.com/learn-decentralized-systems/toytlv

/*
Package protocol is the primitive byte channel the object codec writes to.

Every value is a TLV record: a one-letter type, a length and a body.

 1. Tiny (1 byte header), body 0-9 bytes, lowercase type only:
    [('0' + body_length)]
 2. Short (2 byte header), body up to 255 bytes:
    [lowercase_type, body_length]
 3. Long (5 byte header), body up to 2GB:
    [uppercase_type, length_as_4byte_little_endian]

Tiny records lose their type letter, so readers accept '0' wherever a
specific letter is expected. Numbers inside records are "zipped": stored
little-endian with the high zero bytes dropped, see ZipUint64.

The object codec never inspects framing beyond Take/Append; nested
sections are simply records whose body is a sequence of records.
*/
package protocol

import (
	"encoding/binary"
	"errors"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader analyzes a record header.
//
// Returns:
//   - lit: record type ('A'-'Z', '0' for tiny, '-' for error, 0 for incomplete)
//   - hdrlen: header length (1, 2, or 5 bytes)
//   - bodylen: body length in bytes
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	if dlit >= '0' && dlit <= '9' {
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	} else if dlit >= 'a' && dlit <= 'z' {
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	} else if dlit >= 'A' && dlit <= 'Z' {
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	} else {
		lit = '-'
	}
	return
}

// AppendHeader appends a record header, picking the shortest format.
// A lowercase lit permits the tiny format.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		ret = append(into, byte('0'+bodylen))
	} else if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	} else {
		ret = append(into, lit|CaseBit, byte(bodylen))
	}
	return ret
}

// Take extracts a record of the given type from trusted data.
// Returns nil body and the original data if incomplete,
// nil body and nil rest on a type mismatch.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeWary is Take for untrusted data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit == '-' || (flit != lit && flit != '0') {
		return nil, data, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAnyWary extracts the next record whatever its type.
func TakeAnyWary(data []byte) (lit byte, body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return 0, nil, data, ErrIncomplete
	}
	if flit == '-' {
		return 0, nil, data, ErrBadRecord
	}
	return flit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// Lit returns the canonical type of a record ('0' for tiny, '-' if invalid).
func Lit(rec []byte) byte {
	b := rec[0]
	if b >= 'a' && b <= 'z' {
		return b - CaseBit
	} else if b >= 'A' && b <= 'Z' {
		return b
	} else if b >= '0' && b <= '9' {
		return '0'
	}
	return '-'
}

func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append builds a record from body parts and appends it to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	res = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record creates a standalone record.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	return Append(ret, lit, body...)
}

// OpenHeader starts a record whose body length is not known yet.
// The long format is always used. Pair with CloseHeader:
//
//	bookmark, buf := OpenHeader(buf, 'X')
//	buf = append(buf, body...)
//	CloseHeader(buf, bookmark)
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &= ^CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV liters are uppercase A-Z")
	}
	res = append(buf, lit, 0, 0, 0, 0)
	return len(res), res
}

// CloseHeader writes the body length of a record opened with OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("check the API docs")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}
