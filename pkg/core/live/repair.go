package live

import "strings"

// RepairJSON attempts to make a truncated JSON-like analysis result
// parseable: it trims to the outermost object, strips trailing
// separators, closes an unterminated string, and balances unclosed
// brackets and braces in LIFO order. The repair runs at most once per
// analysis result before falling back to the default Direction.
func RepairJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return raw
	}
	s := raw[start:]

	// Walk the text tracking string state and the open-container stack.
	var stack []byte
	inString := false
	escaped := false
	end := len(s)
	rootClosed := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				end = i + 1
				rootClosed = true
			}
		}
	}
	s = s[:end]

	// A balanced root needs no further surgery; anything past it was
	// trailing prose.
	if rootClosed {
		return s
	}

	if inString {
		s += `"`
	}

	// Trailing separators before we close containers. A dangling colon
	// keeps its key and gets a null value; a dangling comma is dropped.
	s = strings.TrimRight(s, " \t\r\n")
	switch {
	case strings.HasSuffix(s, ":"):
		s += " null"
	case strings.HasSuffix(s, ","):
		s = strings.TrimSuffix(s, ",")
	}

	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			s += "}"
		case '[':
			s += "]"
		}
	}

	return s
}
