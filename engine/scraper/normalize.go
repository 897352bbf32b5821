package scraper

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// nonToken matches everything that cannot be part of a token. '.', '+' and
// '3' survive so that "c++" and "d3.js" stay whole.
var nonToken = regexp.MustCompile(`[^a-zA-Z.+3]`)

// Normalize turns an ad page into its set of lowercase, stop-word-free
// tokens. A body that is not valid UTF-8, or that leaves no tokens, is a
// *domain.DecodeError.
func Normalize(body []byte) (map[string]struct{}, error) {
	if !utf8.Valid(body) {
		return nil, &domain.DecodeError{Reason: "body is not valid utf-8"}
	}
	text, err := visibleText(body)
	if err != nil {
		return nil, &domain.DecodeError{Reason: "tokenize html: " + err.Error()}
	}
	text, err = foldASCII(text)
	if err != nil {
		return nil, &domain.DecodeError{Reason: "fold to ascii: " + err.Error()}
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(nonToken.ReplaceAllString(text, " "))) {
		tok = strings.Trim(tok, ".")
		if !hasLetter(tok) || IsStopWord(tok) {
			continue
		}
		tokens[tok] = struct{}{}
	}
	if len(tokens) == 0 {
		return nil, &domain.DecodeError{Reason: "no tokens"}
	}
	return tokens, nil
}

// visibleText concatenates the text nodes of an HTML document with single
// spaces, skipping script, style and noscript content.
func visibleText(body []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(body))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return b.String(), nil
		case html.StartTagToken:
			if hidden(z) {
				skip++
			}
		case html.EndTagToken:
			if hidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
	}
}

func hidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Noscript:
		return true
	}
	return false
}

// foldASCII strips accents and drops whatever is still outside ASCII.
func foldASCII(s string) (string, error) {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	return out, err
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
