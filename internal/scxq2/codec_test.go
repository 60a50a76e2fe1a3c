package scxq2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, data []byte) {
	t.Helper()
	encoded := Encode(data)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded), "round trip mismatch for %q", data)
}

func TestRoundTrip_Empty(t *testing.T) {
	roundTrip(t, []byte{})
}

func TestRoundTrip_PlainText(t *testing.T) {
	roundTrip(t, []byte("hello world, this is a plain payload"))
}

func TestRoundTrip_DictionaryHeavyPayload(t *testing.T) {
	roundTrip(t, []byte(`{"status":"error","handler":"ghost_launch","payload":{}}`))
}

func TestRoundTrip_RepeatedRuns(t *testing.T) {
	roundTrip(t, bytes.Repeat([]byte{'z'}, 500))
}

func TestRoundTrip_ControlBytesLiteral(t *testing.T) {
	roundTrip(t, []byte{0xFD, 0xFE, 0xFF, 0x00, 0xFD, 0xFD})
}

func TestRoundTrip_DictionaryLookalikeWithoutFullMatch(t *testing.T) {
	roundTrip(t, []byte("stat hand err tap"))
}

func TestRoundTrip_MixedRunsDictionaryAndControlBytes(t *testing.T) {
	data := append([]byte("ghost_launch"), bytes.Repeat([]byte{0xFF}, 10)...)
	data = append(data, []byte("application/json")...)
	roundTrip(t, data)
}

func TestEncode_ShrinksRepetitiveInput(t *testing.T) {
	data := bytes.Repeat([]byte{'a'}, 1000)
	encoded := Encode(data)
	assert.Less(t, len(encoded), len(data))
}

func TestRatio_EmptyInputIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Ratio(nil, nil))
}

func TestRatio_ReflectsEncodedSize(t *testing.T) {
	data := []byte("application/json")
	encoded := Encode(data)
	ratio := Ratio(data, encoded)
	assert.InDelta(t, float64(len(encoded))/float64(len(data)), ratio, 0.0001)
}

func TestDecode_RejectsTruncatedDictionaryToken(t *testing.T) {
	_, err := Decode([]byte{tokenDict})
	require.Error(t, err)
}

func TestDecode_RejectsOutOfRangeDictionaryIndex(t *testing.T) {
	_, err := Decode([]byte{tokenDict, 0xFF})
	require.Error(t, err)
}
