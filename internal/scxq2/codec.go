// Package scxq2 implements the handler set's SCXQ2 codec (spec §4.4):
// decode(encode(x)) == x for every byte slice, including inputs that happen
// to contain the codec's own control bytes or dictionary substrings. No
// ecosystem compression library covers this bespoke, self-describing wire
// format (it is not gzip/zstd-compatible and the spec does not ask for
// standard compression), so this is a small hand-rolled codec justified in
// the grounding ledger rather than backed by a third-party dependency.
//
// Round-trip correctness holds by construction: decode never has to guess
// whether a byte sequence in the input "looks like" a dictionary entry or a
// run — it only replays the explicit control tokens the encoder itself
// wrote, so there is no ambiguity to resolve.
package scxq2

import (
	"encoding/binary"
	"fmt"
)

const (
	tokenLiteral = 0xFD
	tokenRun     = 0xFE
	tokenDict    = 0xFF

	minRunLength  = 4
	minDictMatch  = 3
)

// dictionary holds common substrings seen across tape manifests, envelope
// payloads and agent prompts; entries must stay under 255 so an index fits
// a single byte.
var dictionary = []string{
	"application/json",
	"http://",
	"https://",
	"ghost_",
	"agents_",
	"kuhul_",
	"micronaut_",
	"status",
	"error",
	"handler",
	"payload",
	"tape",
	"result",
}

// Encode compresses data into the SCXQ2 wire format.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if dictIdx, matchLen := matchDictionary(data[i:]); dictIdx >= 0 {
			out = append(out, tokenDict, byte(dictIdx))
			i += matchLen
			continue
		}

		if runLen := matchRun(data[i:]); runLen >= minRunLength {
			out = append(out, tokenRun, data[i])
			out = appendVarint(out, uint64(runLen))
			i += runLen
			continue
		}

		b := data[i]
		if b == tokenLiteral || b == tokenRun || b == tokenDict {
			out = append(out, tokenLiteral, b)
		} else {
			out = append(out, b)
		}
		i++
	}
	return out
}

// Decode reverses Encode, reconstructing the original bytes exactly.
func Decode(encoded []byte) ([]byte, error) {
	out := make([]byte, 0, len(encoded))
	i := 0
	for i < len(encoded) {
		switch encoded[i] {
		case tokenLiteral:
			if i+1 >= len(encoded) {
				return nil, fmt.Errorf("scxq2: truncated literal token at offset %d", i)
			}
			out = append(out, encoded[i+1])
			i += 2

		case tokenDict:
			if i+1 >= len(encoded) {
				return nil, fmt.Errorf("scxq2: truncated dictionary token at offset %d", i)
			}
			idx := int(encoded[i+1])
			if idx >= len(dictionary) {
				return nil, fmt.Errorf("scxq2: dictionary index %d out of range", idx)
			}
			out = append(out, dictionary[idx]...)
			i += 2

		case tokenRun:
			if i+1 >= len(encoded) {
				return nil, fmt.Errorf("scxq2: truncated run token at offset %d", i)
			}
			runByte := encoded[i+1]
			count, n, err := readVarint(encoded[i+2:])
			if err != nil {
				return nil, err
			}
			for j := uint64(0); j < count; j++ {
				out = append(out, runByte)
			}
			i += 2 + n

		default:
			out = append(out, encoded[i])
			i++
		}
	}
	return out, nil
}

// Ratio reports encoded/original size, 1.0 for empty input.
func Ratio(original, encoded []byte) float64 {
	if len(original) == 0 {
		return 1.0
	}
	return float64(len(encoded)) / float64(len(original))
}

func matchDictionary(remaining []byte) (index int, matchLen int) {
	best := -1
	bestLen := 0
	for idx, entry := range dictionary {
		l := len(entry)
		if l < minDictMatch || l > len(remaining) {
			continue
		}
		if string(remaining[:l]) == entry && l > bestLen {
			best = idx
			bestLen = l
		}
	}
	return best, bestLen
}

func matchRun(remaining []byte) int {
	if len(remaining) == 0 {
		return 0
	}
	b := remaining[0]
	n := 1
	for n < len(remaining) && remaining[n] == b {
		n++
	}
	return n
}

func appendVarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func readVarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, fmt.Errorf("scxq2: malformed varint")
	}
	return v, n, nil
}
