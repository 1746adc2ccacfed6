package reducer

import (
	"strconv"
	"strings"
)

// sentinel delimits placeholder indexes. It is a private-use rune that
// exercise sources never contain.
const sentinel = "\uE000"

// masked is a source whose string literals, template literals and comments
// were swapped for placeholders, so the rewrite passes only ever see code.
type masked struct {
	text string
	lits []string
}

// mask replaces literals and comments with numbered placeholders. String
// and template literals become a double quoted placeholder, so passes can
// still recognise a module specifier or a literal type; comments become a
// block comment placeholder. Regex literals are copied through untouched.
func mask(src string) masked {
	var (
		out  strings.Builder
		lits []string
		prev byte // last significant code byte
	)
	out.Grow(len(src))

	keep := func(lit string, comment bool) {
		idx := strconv.Itoa(len(lits))
		lits = append(lits, lit)
		if comment {
			out.WriteString("/*" + sentinel + idx + sentinel + "*/")
			return
		}
		out.WriteString(`"` + sentinel + idx + sentinel + `"`)
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			keep(src[i:i+end], true)
			i += end

		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				keep(src[i:], true)
				i = len(src)
				break
			}
			keep(src[i:i+end+4], true)
			i += end + 4

		case c == '\'' || c == '"':
			end := skipQuoted(src, i)
			keep(src[i:end], false)
			i = end
			prev = c

		case c == '`':
			end := skipTemplate(src, i)
			keep(src[i:end], false)
			i = end
			prev = c

		case c == '/' && regexAllowed(prev):
			end := skipRegex(src, i)
			out.WriteString(src[i:end])
			i = end
			prev = '/'

		default:
			out.WriteByte(c)
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				prev = c
			}
			i++
		}
	}

	return masked{text: out.String(), lits: lits}
}

// unmask puts the original literals back. Placeholders removed by a pass
// simply stay removed.
func (m masked) unmask(text string) string {
	if len(m.lits) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	for {
		start := strings.Index(text, sentinel)
		if start < 0 {
			out.WriteString(text)
			return out.String()
		}
		rest := text[start+len(sentinel):]
		end := strings.Index(rest, sentinel)
		if end < 0 {
			out.WriteString(text)
			return out.String()
		}
		idx, err := strconv.Atoi(rest[:end])
		if err != nil || idx >= len(m.lits) {
			out.WriteString(text[:start+len(sentinel)])
			text = rest
			continue
		}

		// Drop the wrapping quotes or comment markers added by mask.
		head := text[:start]
		tail := rest[end+len(sentinel):]
		switch {
		case strings.HasSuffix(head, `"`) && strings.HasPrefix(tail, `"`):
			head, tail = head[:len(head)-1], tail[1:]
		case strings.HasSuffix(head, "/*") && strings.HasPrefix(tail, "*/"):
			head, tail = head[:len(head)-2], tail[2:]
		}
		out.WriteString(head)
		out.WriteString(m.lits[idx])
		text = tail
	}
}

func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(s)
}

func skipTemplate(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '`':
			return j + 1
		case '$':
			if j+1 < len(s) && s[j+1] == '{' {
				j = skipBraces(s, j+1) - 1
			}
		}
	}
	return len(s)
}

// skipBraces skips a ${...} expression, including nested literals.
func skipBraces(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1
			}
		case '\'', '"':
			j = skipQuoted(s, j) - 1
		case '`':
			j = skipTemplate(s, j) - 1
		}
	}
	return len(s)
}

func skipRegex(s string, i int) int {
	inClass := false
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				j++
				for j < len(s) && isIdentByte(s[j]) {
					j++
				}
				return j
			}
		case '\n':
			return j
		}
	}
	return len(s)
}

// regexAllowed reports whether a slash after prev starts a regex literal
// rather than a division.
func regexAllowed(prev byte) bool {
	if prev == 0 {
		return true
	}
	return strings.IndexByte("(,=:[!&|?{};+-*%<>~^", prev) >= 0
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
