package imagerender

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// consumedImageAttrs are mapped onto ImageReference fields; everything else
// on the <img> is kept as a passthrough attribute.
var consumedImageAttrs = map[string]struct{}{
	"src":             {},
	"width":           {},
	"height":          {},
	"alt":             {},
	"title":           {},
	"class":           {},
	AttrFileUID:       {},
	AttrFileTable:     {},
	AttrZoom:          {},
	AttrNoScale:       {},
	AttrQuality:       {},
	AttrAltOverride:   {},
	AttrTitleOverride: {},
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

// Extract parses fragment and returns one reference per <img> it contains.
// It returns ErrNoMatch for empty or unparseable markup, for fragments without
// images, and for a <figure> that wraps no image.
func Extract(fragment string) ([]ImageReference, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, ErrNoMatch
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return nil, ErrNoMatch
	}

	w := &walker{source: fragment}
	for _, n := range nodes {
		w.walk(n, nil, nil)
	}

	if len(w.refs) == 0 {
		return nil, ErrNoMatch
	}
	if len(w.refs) > 1 {
		scopeSources(w.refs, fragment)
	}
	return w.refs, nil
}

// scopeSources narrows the Source of each reference of a multi-image fragment
// to the raw bytes of its own <img> tag. When the tokenizer and the parser
// disagree on the image count no source can be attributed, and every Source
// is cleared.
func scopeSources(refs []ImageReference, fragment string) {
	tags := ImageTags(fragment)
	for i := range refs {
		if len(tags) == len(refs) {
			refs[i].Source = tags[i].Raw
		} else {
			refs[i].Source = ""
		}
	}
}

type walker struct {
	source string
	refs   []ImageReference
}

func (w *walker) walk(n *html.Node, figure, link *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Figure:
			if figure == nil {
				figure = n
			}
		case atom.A:
			link = n
		case atom.Img:
			w.refs = append(w.refs, buildReference(n, figure, link, w.source))
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, figure, link)
	}
}

func buildReference(img, figure, link *html.Node, source string) ImageReference {
	ref := ImageReference{Source: source}

	for _, attr := range img.Attr {
		key := strings.ToLower(attr.Key)
		val := attr.Val

		switch key {
		case "src":
			ref.Src = val
		case "width":
			if n, ok := parseDimension(val); ok {
				if n > 0 {
					ref.Width = n
				} else {
					ref.InvalidDimension = true
				}
			}
		case "height":
			if n, ok := parseDimension(val); ok {
				if n > 0 {
					ref.Height = n
				} else {
					ref.InvalidDimension = true
				}
			}
		case "alt":
			ref.Alt = val
		case "title":
			ref.Title = val
		case "class":
			ref.Class = val
		case AttrFileUID:
			if uid, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64); err == nil && uid > 0 {
				id := uint(uid)
				ref.FileUID = &id
			}
		case AttrFileTable:
			ref.FileTable = strings.TrimSpace(val)
		case AttrZoom:
			ref.Zoom = strings.TrimSpace(val) == "true"
		case AttrNoScale:
			ref.SetNoScale(true)
		case AttrQuality:
			if !ref.NoScale() {
				ref.SetQuality(ParseQuality(val))
			}
		case AttrAltOverride:
			ref.AltOverride = Override{Present: true, Value: val}
		case AttrTitleOverride:
			ref.TitleOverride = Override{Present: true, Value: val}
		}

		if _, consumed := consumedImageAttrs[key]; !consumed {
			ref.Attributes = ref.Attributes.Set(key, val)
		}
	}

	if link != nil {
		ref.Link = linkAttributes(link)
	}

	if figure != nil {
		ref.InFigure = true
		for _, attr := range figure.Attr {
			ref.FigureAttributes = ref.FigureAttributes.Set(strings.ToLower(attr.Key), attr.Val)
		}
		if caption, ok := figcaptionText(figure); ok {
			ref.Caption = &caption
		}
	}

	if ref.Caption == nil {
		if caption, ok := ref.Attributes.Get(AttrCaption); ok {
			ref.Caption = &caption
		}
	}

	return ref
}

func linkAttributes(n *html.Node) *LinkAttributes {
	link := &LinkAttributes{}
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "href":
			link.Href = attr.Val
		case "target":
			link.Target = attr.Val
		case "title":
			link.Title = attr.Val
		case "class":
			link.Class = attr.Val
		case AttrPopup:
			link.Popup = strings.TrimSpace(attr.Val) == "true"
		}
	}
	return link
}

// figcaptionText returns the trimmed text of the first <figcaption> below figure.
func figcaptionText(figure *html.Node) (string, bool) {
	caption := findElement(figure, atom.Figcaption)
	if caption == nil {
		return "", false
	}
	var b strings.Builder
	collectText(caption, &b)
	return strings.TrimSpace(b.String()), true
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// IsImageFigure reports whether fragment is a single <figure> whose content is
// one image, optionally wrapped in a link, plus an optional <figcaption>.
// Figures wrapping tables or other blocks are not image figures.
func IsImageFigure(fragment string) bool {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return false
	}

	var figure *html.Node
	for _, n := range nodes {
		switch {
		case n.Type == html.ElementNode && n.DataAtom == atom.Figure && figure == nil:
			figure = n
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		case n.Type == html.CommentNode:
		default:
			return false
		}
	}
	if figure == nil {
		return false
	}

	images := 0
	for c := figure.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		case c.Type != html.ElementNode:
		case c.DataAtom == atom.Img:
			images++
		case c.DataAtom == atom.Figcaption:
		case c.DataAtom == atom.A:
			n, ok := linkedImages(c)
			if !ok {
				return false
			}
			images += n
		default:
			return false
		}
	}
	return images == 1
}

func linkedImages(a *html.Node) (int, bool) {
	images := 0
	for c := a.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return 0, false
			}
		case c.Type != html.ElementNode:
		case c.DataAtom == atom.Img:
			images++
		default:
			return 0, false
		}
	}
	return images, true
}
