package wire

import "bytes"

// ExtractJSON returns the span from the first '{' to the last '}' in buf with
// every ASCII whitespace byte removed, including whitespace inside string
// values. It reports false when there is no such span.
//
// buf is one inbound chunk as delivered by the socket. Objects split across
// chunks are not stitched back together.
func ExtractJSON(buf []byte) (string, bool) {
	start := bytes.IndexByte(buf, '{')
	if start < 0 {
		return "", false
	}
	end := bytes.LastIndexByte(buf, '}')
	if end < start {
		return "", false
	}
	return stripSpace(buf[start : end+1]), true
}

func stripSpace(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\v', '\f', '\r':
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
