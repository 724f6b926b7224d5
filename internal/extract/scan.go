package extract

import (
	"encoding/json"
	"strings"
)

// scanner walks JSON-ish text tracking string literals so that braces and
// commas inside strings are never treated as structure.
type scanner struct {
	s        string
	inString bool
	escaped  bool
}

// step advances over s[i] and reports whether the byte is structural,
// i.e. outside any string literal and not a quote delimiter.
func (sc *scanner) step(i int) bool {
	c := sc.s[i]
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"' && closesString(sc.s, i):
			sc.inString = false
		}
		return false
	}
	if c == '"' {
		sc.inString = true
		return false
	}
	return true
}

// closesString reports whether the quote at s[i] ends a string literal.
// A quote followed by anything other than whitespace and one of , : } ]
// is an unescaped quote inside the value. End of input counts as closing.
func closesString(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', ':', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

// Blocks returns every balanced top-level {...} substring of s in order.
// Nested objects stay inside their parent block, stray closing braces are
// ignored and an object still open at the end of s is not returned.
func Blocks(s string) []string {
	blocks, _ := split(s)
	return blocks
}

// OpenBlock returns the top-level object that is still open at the end of
// s, from its opening brace to the end of input, or "" when none is.
func OpenBlock(s string) string {
	_, open := split(s)
	return open
}

func split(s string) (blocks []string, open string) {
	sc := scanner{s: s}
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		if !sc.step(i) {
			continue
		}
		switch s[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				blocks = append(blocks, s[start:i+1])
			}
		}
	}
	if depth > 0 {
		open = s[start:]
	}
	return blocks, open
}

// arrayField is an array-valued member of a block's outermost object.
type arrayField struct {
	key string
	// keyStart is the offset of the opening quote of the member's key.
	keyStart int
	// objects holds the complete object elements of the array in order.
	objects []string
}

// arrayFields walks a single object block, which may be cut off at any
// point, and returns its array-valued members in document order. Only
// elements that are complete objects are collected.
func arrayFields(block string) []arrayField {
	var (
		fields   []arrayField
		stack    []byte
		cur      = -1
		key      string
		keyAt    = -1
		strStart int
		lastStr  string
		lastAt   int
		objStart int
	)
	sc := scanner{s: block}
	for i := 0; i < len(block); i++ {
		wasIn := sc.inString
		if !sc.step(i) {
			if len(stack) != 1 {
				continue
			}
			switch {
			case !wasIn && sc.inString:
				strStart = i
			case wasIn && !sc.inString:
				lastStr, lastAt = block[strStart:i+1], strStart
			}
			continue
		}

		switch c := block[i]; c {
		case ':':
			if len(stack) == 1 {
				key, keyAt = unquote(lastStr), lastAt
			}
		case ',':
			if len(stack) == 1 {
				key, keyAt = "", -1
			}
		case '{', '[':
			if c == '[' && len(stack) == 1 && keyAt >= 0 {
				fields = append(fields, arrayField{key: key, keyStart: keyAt})
				cur = len(fields) - 1
			}
			if c == '{' && cur >= 0 && len(stack) == 2 && stack[1] == '[' {
				objStart = i
			}
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			switch {
			case c == '}' && cur >= 0 && len(stack) == 2 && stack[1] == '[':
				fields[cur].objects = append(fields[cur].objects, block[objStart:i+1])
			case c == ']' && len(stack) == 1:
				cur = -1
			}
		}
	}
	return fields
}

// unquote strips the quotes of a key literal, keeping raw text when it does
// not decode.
func unquote(lit string) string {
	var s string
	if err := json.Unmarshal([]byte(lit), &s); err != nil {
		return strings.Trim(lit, `"`)
	}
	return s
}
