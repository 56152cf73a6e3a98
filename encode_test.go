package stompest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//encoded key, decoded value
var testEncodeData = map[string]string{
	"astring":             "astring",
	"\\\\":                "\\",
	"\\n":                 "\n",
	"\\c":                 ":",
	"\\\\\\n\\c":          "\\\n:",
	"\\c\\n\\\\":          ":\n\\",
	"\\\\\\c":             "\\:",
	"c\\cc":               "c:c",
	"n\\nn":               "n\nn",
	"test\\cvalue\\ntest": "test:value\ntest",
}

func TestEncodeHeader(t *testing.T) {
	for to, from := range testEncodeData {
		assert.Equal(t, to, encodeHeader(V11, from), "expected encoded value for %q", from)
	}
}

func TestDecodeHeader(t *testing.T) {
	for to, from := range testEncodeData {
		decoded, err := decodeHeader(V11, to)
		require.NoError(t, err, "did not expect an error decoding %q", to)
		assert.Equal(t, from, decoded, "expected decoded value for %q", to)
	}
}

func TestDecodeHeaderRejectsUndefinedEscapes(t *testing.T) {
	for _, bad := range []string{"\\t", "a\\", "\\ca\\x", "\\"} {
		_, err := decodeHeader(V11, bad)
		require.Error(t, err, "expected an error decoding %q", bad)
		assert.IsType(t, BadFrameError(""), err)
	}
}

func TestDecodeHeaderCarriageReturnOnlyIn12(t *testing.T) {
	decoded, err := decodeHeader(V12, "a\\rb")
	require.NoError(t, err, "1.2 defines the carriage return escape")
	assert.Equal(t, "a\rb", decoded)

	_, err = decodeHeader(V11, "a\\rb")
	require.Error(t, err, "1.1 does not define the carriage return escape")
	assert.IsType(t, BadFrameError(""), err)
}

func TestEncodeHeaderCarriageReturnOnlyIn12(t *testing.T) {
	assert.Equal(t, "a\\rb", encodeHeader(V12, "a\rb"), "1.2 escapes carriage returns")
	assert.Equal(t, "a\rb", encodeHeader(V11, "a\rb"), "1.1 leaves carriage returns alone")
}

func TestEncodeHeaderNoEscapingIn10(t *testing.T) {
	assert.Equal(t, "a:b", encodeHeader(V10, "a:b"), "1.0 defines no escape sequences")
	decoded, err := decodeHeader(V10, "a\\cb")
	require.NoError(t, err)
	assert.Equal(t, "a\\cb", decoded, "1.0 must not unescape")
}
