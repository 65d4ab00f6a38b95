package imagerender

import (
	"html"
	"strings"

	nethtml "golang.org/x/net/html"
)

// Token is one lexical token of a fragment. Raw holds the exact input bytes,
// so concatenating the Raw of every token reproduces the fragment.
type Token struct {
	Type   nethtml.TokenType
	Raw    string
	Offset int
	Name   string
	Attr   Attributes
}

// IsStart reports whether t opens (or self-closes) an element named name.
func (t Token) IsStart(name string) bool {
	return (t.Type == nethtml.StartTagToken || t.Type == nethtml.SelfClosingTagToken) && t.Name == name
}

func (t Token) IsEnd(name string) bool {
	return t.Type == nethtml.EndTagToken && t.Name == name
}

// IsBlank reports whether t is a whitespace-only text token.
func (t Token) IsBlank() bool {
	return t.Type == nethtml.TextToken && strings.TrimSpace(t.Raw) == ""
}

// Render rebuilds the tag with attrs, keeping its self-closing style.
func (t Token) Render(attrs Attributes) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(t.Name)
	for _, attr := range attrs {
		b.WriteByte(' ')
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteByte('"')
	}
	if t.Type == nethtml.SelfClosingTagToken || strings.HasSuffix(t.Raw, "/>") {
		b.WriteString(" />")
	} else {
		b.WriteByte('>')
	}
	return b.String()
}

// Tokenize splits fragment into tokens without building a tree. Tag names and
// attribute keys are lowercased, attribute values are entity-decoded.
func Tokenize(fragment string) []Token {
	z := nethtml.NewTokenizer(strings.NewReader(fragment))
	var tokens []Token
	offset := 0

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}

		raw := string(z.Raw())
		tok := Token{Type: tt, Raw: raw, Offset: offset}
		offset += len(raw)

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken, nethtml.EndTagToken:
			name, hasAttr := z.TagName()
			tok.Name = string(name)
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				tok.Attr = tok.Attr.Set(string(key), string(val))
			}
		}

		tokens = append(tokens, tok)
	}

	return tokens
}

// ImageTags returns the <img> tags of fragment in document order.
func ImageTags(fragment string) []Token {
	var images []Token
	for _, tok := range Tokenize(fragment) {
		if tok.IsStart("img") {
			images = append(images, tok)
		}
	}
	return images
}

// SplitFigure splits a fragment consisting of exactly one <figure> element
// into its opening part, inner content and closing part.
func SplitFigure(fragment string) (open, inner, close string, ok bool) {
	tokens := Tokenize(fragment)

	first := -1
	for i, tok := range tokens {
		if !tok.IsBlank() {
			first = i
			break
		}
	}
	if first < 0 || !tokens[first].IsStart("figure") || tokens[first].Type == nethtml.SelfClosingTagToken {
		return "", "", "", false
	}

	depth := 0
	last := -1
	for i := first; i < len(tokens); i++ {
		switch {
		case tokens[i].IsStart("figure") && tokens[i].Type == nethtml.StartTagToken:
			depth++
		case tokens[i].IsEnd("figure"):
			depth--
		}
		if depth == 0 {
			last = i
			break
		}
	}
	if last < 0 {
		return "", "", "", false
	}
	for _, tok := range tokens[last+1:] {
		if !tok.IsBlank() {
			return "", "", "", false
		}
	}

	innerStart := tokens[first].Offset + len(tokens[first].Raw)
	innerEnd := tokens[last].Offset
	return fragment[:innerStart], fragment[innerStart:innerEnd], fragment[innerEnd:], true
}

// ReplaceImageSrc rewrites the src attribute of the first <img> in fragment.
// Every other byte of the fragment is preserved.
func ReplaceImageSrc(fragment, src string) string {
	images := ImageTags(fragment)
	if len(images) == 0 {
		return fragment
	}
	tag := images[0]
	rewritten := tag.Render(tag.Attr.Set("src", src))
	return fragment[:tag.Offset] + rewritten + fragment[tag.Offset+len(tag.Raw):]
}
