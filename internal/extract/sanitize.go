package extract

import (
	"fmt"
	"strings"
)

// Sanitize repairs the common defects of model-written JSON in a single
// object block: trailing commas before } or ], raw control characters
// inside strings and unescaped quotes inside string values.
func Sanitize(block string) string {
	var sb strings.Builder
	sb.Grow(len(block) + 16)

	inString, escaped := false, false
	for i := 0; i < len(block); i++ {
		c := block[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				sb.WriteByte(c)
			case c == '\\':
				escaped = true
				sb.WriteByte(c)
			case c == '"':
				if closesString(block, i) {
					inString = false
					sb.WriteByte(c)
				} else {
					sb.WriteString(`\"`)
				}
			case c == '\n':
				sb.WriteString(`\n`)
			case c == '\r':
				sb.WriteString(`\r`)
			case c == '\t':
				sb.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&sb, `\u%04x`, c)
			default:
				sb.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			if closesContainer(block, i) {
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// closesContainer reports whether the comma at s[i] is followed, after
// whitespace, by a closing brace or bracket.
func closesContainer(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}
