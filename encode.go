package stompest

import "strings"

//Header escaping as defined from 1.1 on. 1.0 has no escape sequences, so its
//header values pass through untouched; 1.2 adds the carriage return escape.
var (
	encoderV11 = strings.NewReplacer(
		"\\", "\\\\",
		"\n", "\\n",
		":", "\\c",
	)
	encoderV12 = strings.NewReplacer(
		"\\", "\\\\",
		"\r", "\\r",
		"\n", "\\n",
		":", "\\c",
	)
)

func encodeHeader(v Version, s string) string {
	switch v {
	case V11:
		return encoderV11.Replace(s)
	case V12:
		return encoderV12.Replace(s)
	}
	return s
}

//decodeHeader unescapes a header name or value. An escape sequence the
//version does not define is a fatal frame error, per the protocol.
func decodeHeader(v Version, s string) (string, error) {
	if !v.AtLeast(V11) || !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", BadFrameError("truncated escape sequence in header " + s)
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			if v != V12 {
				return "", BadFrameError("escape sequence \\r is not defined in STOMP " + string(v))
			}
			b.WriteByte('\r')
		default:
			return "", BadFrameError("undefined escape sequence \\" + string(s[i]) + " in header " + s)
		}
	}
	return b.String(), nil
}
