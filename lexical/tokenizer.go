package lexical

// TokenizerFunc splits text into terms. Implementations must be pure and
// deterministic: the same text always yields the same terms.
type TokenizerFunc func(text string) []string

// Tokenize lowercases text and extracts maximal runs of ASCII alphanumeric
// characters as terms. Everything else, including punctuation, whitespace
// and non-ASCII characters, acts as a separator and is dropped. Empty input
// yields an empty slice.
func Tokenize(text string) []string {
	terms := make([]string, 0, 8)
	var start = -1

	flush := func(end int) {
		if start >= 0 {
			terms = append(terms, lower(text[start:end]))
			start = -1
		}
	}

	for i := 0; i < len(text); i++ {
		if isAlnum(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))

	return terms
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// lower lowercases an ASCII alphanumeric run without going through
// strings.ToLower, which would re-scan for UTF-8.
func lower(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
