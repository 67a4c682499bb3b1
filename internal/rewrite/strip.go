package rewrite

// Syntax selects which comment forms StripComments recognises.
type Syntax int

const (
	// SyntaxJS strips block and line comments and skips strings, template
	// literals and regular expression literals.
	SyntaxJS Syntax = iota
	// SyntaxCSS strips block comments only; "//" is ordinary text in CSS.
	SyntaxCSS
)

// StripComments removes comments from src. Newlines inside removed comments
// are kept so line numbers in the output still match the source.
func StripComments(src []byte, syntax Syntax) []byte {
	out := make([]byte, 0, len(src))
	n := len(src)

	for i := 0; i < n; {
		c := src[i]

		switch {
		case c == '"' || c == '\'' || (c == '`' && syntax == SyntaxJS):
			end := skipString(src, i)
			out = append(out, src[i:end]...)
			i = end

		case c == '/' && i+1 < n && src[i+1] == '*':
			end := i + 2
			newlines := 0
			for end < n && !(src[end] == '*' && end+1 < n && src[end+1] == '/') {
				if src[end] == '\n' {
					newlines++
				}
				end++
			}
			end += 2
			if end > n {
				end = n
			}
			if newlines > 0 {
				for k := 0; k < newlines; k++ {
					out = append(out, '\n')
				}
			} else if len(out) > 0 && end < n && isWord(out[len(out)-1]) && isWord(src[end]) {
				out = append(out, ' ')
			}
			i = end

		case c == '/' && syntax == SyntaxJS && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '/' && syntax == SyntaxJS && regexAllowed(out):
			end := skipRegex(src, i)
			out = append(out, src[i:end]...)
			i = end

		default:
			out = append(out, c)
			i++
		}
	}

	return out
}

func skipString(src []byte, start int) int {
	quote := src[start]
	i := start + 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		case '\n':
			if quote != '`' {
				return i
			}
		}
		i++
	}
	return len(src)
}

// skipRegex returns the end of a regular expression literal starting at
// start, or start+1 when the slash turns out to be a division operator.
func skipRegex(src []byte, start int) int {
	inClass := false
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				end := i + 1
				for end < len(src) && isWord(src[end]) {
					end++
				}
				return end
			}
		case '\n':
			return start + 1
		}
	}
	return start + 1
}

// regexAllowed reports whether a slash following out starts a regular
// expression literal rather than a division.
func regexAllowed(out []byte) bool {
	for i := len(out) - 1; i >= 0; i-- {
		switch out[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
			return true
		default:
			return endsWithKeyword(out[:i+1])
		}
	}
	return true
}

func endsWithKeyword(out []byte) bool {
	for _, kw := range []string{"return", "typeof", "case", "do", "else", "in", "of", "void", "yield", "await"} {
		if len(out) < len(kw) || string(out[len(out)-len(kw):]) != kw {
			continue
		}
		if len(out) == len(kw) || !isWord(out[len(out)-len(kw)-1]) {
			return true
		}
	}
	return false
}

func isWord(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
