// Package unionid encodes small tuples of non-negative integers — (userID,
// feedID) or (userID, feedID, offset) — into compact opaque strings used as
// external identifiers. The wire form is base32hex (lowercase, unpadded)
// over varint-encoded numbers followed by a one-byte XOR checksum.
package unionid

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid union id")

var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Encode packs the numbers into an opaque string. Negative numbers are not
// representable.
func Encode(numbers ...int64) (string, error) {
	if len(numbers) == 0 {
		return "", fmt.Errorf("%w: empty tuple", ErrInvalid)
	}
	var buf []byte
	for _, n := range numbers {
		if n < 0 {
			return "", fmt.Errorf("%w: negative number %d", ErrInvalid, n)
		}
		buf = binary.AppendUvarint(buf, uint64(n))
	}
	var check byte
	for _, b := range buf {
		check ^= b
	}
	buf = append(buf, check)
	return strings.ToLower(encoding.EncodeToString(buf)), nil
}

// Decode unpacks an opaque string produced by Encode.
func Decode(text string) ([]int64, error) {
	raw, err := encoding.DecodeString(strings.ToUpper(strings.TrimSpace(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: too short", ErrInvalid)
	}
	payload, check := raw[:len(raw)-1], raw[len(raw)-1]
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	if sum != check {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalid)
	}
	var numbers []int64
	for len(payload) > 0 {
		n, size := binary.Uvarint(payload)
		if size <= 0 {
			return nil, fmt.Errorf("%w: truncated varint", ErrInvalid)
		}
		numbers = append(numbers, int64(n))
		payload = payload[size:]
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("%w: empty tuple", ErrInvalid)
	}
	return numbers, nil
}

// DecodeFeedID extracts the feed id from a feed or story union id, which
// encode as (userID, feedID) and (userID, feedID, offset) respectively.
func DecodeFeedID(text string) (int64, error) {
	numbers, err := Decode(text)
	if err != nil {
		return 0, err
	}
	if len(numbers) < 2 || len(numbers) > 3 {
		return 0, fmt.Errorf("%w: expected 2 or 3 numbers, got %d", ErrInvalid, len(numbers))
	}
	return numbers[1], nil
}
