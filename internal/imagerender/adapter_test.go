package imagerender

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestAdapter(repo *mockAssetRepository) *Adapter {
	opts := Options{Popup: PopupOptions{MaxWidth: 800, MaxHeight: 800, Class: "lightbox", Rel: "lightbox"}}
	return NewAdapter(NewResolver(repo, stripScripts, opts), opts)
}

type wrapperCounts struct {
	figures     int
	figcaptions int
	anchors     int
}

func countWrappers(markup string) wrapperCounts {
	return wrapperCounts{
		figures:     strings.Count(markup, "<figure"),
		figcaptions: strings.Count(markup, "<figcaption"),
		anchors:     strings.Count(markup, "<a "),
	}
}

func TestImageContextSkipsCaptionedImages(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1" data-caption="Harbour">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if result.Changed || result.Markup != fragment {
		t.Fatalf("expected captioned image to be skipped, got %q", result.Markup)
	}
}

func TestImageContextPassesThroughExternalAndMissingFiles(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragments := []string{
		`<img src="https://cdn.example.com/a.png" width="10" alt=''>`,
		`<img src="/fileadmin/deleted.jpg" data-htmlarea-file-uid="404">`,
	}

	for _, fragment := range fragments {
		result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
		if result.Markup != fragment || result.Changed {
			t.Fatalf("expected %q unchanged, got %q", fragment, result.Markup)
		}
	}
}

func TestImageContextSanitizesExternalSVG(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<img src="data:image/svg+xml,` + strings.ReplaceAll(dirtySVG, `"`, "'") + `" alt="icon">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if !result.Changed {
		t.Fatalf("expected sanitized src")
	}
	if strings.Contains(result.Markup, "script") {
		t.Fatalf("script survived sanitization: %s", result.Markup)
	}
	if !strings.Contains(result.Markup, `alt="icon"`) {
		t.Fatalf("expected other attributes to survive: %s", result.Markup)
	}
}

func TestImageContextRendersManagedImage(t *testing.T) {
	repo := newMockRepository()
	adapter := newTestAdapter(repo)
	fragment := `<img src="/fileadmin/old.jpg" width="300" class="image-left" data-htmlarea-file-uid="1" data-htmlarea-file-table="sys_file">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if result.Variant != VariantStandalone {
		t.Fatalf("expected standalone variant, got %s", result.Variant)
	}
	if !strings.Contains(result.Markup, `src="/fileadmin/_processed_/1_600x400.jpg"`) {
		t.Fatalf("expected processed src in %s", result.Markup)
	}
	if !strings.Contains(result.Markup, `alt="Harbour"`) || !strings.Contains(result.Markup, `class="image-left"`) {
		t.Fatalf("expected resolved alt and class in %s", result.Markup)
	}
	if c := countWrappers(result.Markup); c != (wrapperCounts{}) {
		t.Fatalf("image context must not add wrappers: %+v", c)
	}
}

func TestImageContextZoomRendersPopup(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<img src="/fileadmin/harbour.jpg" width="300" data-htmlarea-file-uid="1" data-htmlarea-zoom="true">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if result.Variant != VariantPopup {
		t.Fatalf("expected popup variant, got %s", result.Variant)
	}
	for _, want := range []string{`data-popup="true"`, `rel="lightbox"`, `href="/fileadmin/_processed_/1_800x533.jpg"`, `data-popup-width="800"`} {
		if !strings.Contains(result.Markup, want) {
			t.Fatalf("expected %s in %s", want, result.Markup)
		}
	}
	if c := countWrappers(result.Markup); c.anchors != 1 || c.figures != 0 {
		t.Fatalf("unexpected wrappers: %+v", c)
	}

	again := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: result.Markup})
	if again.Markup != result.Markup {
		t.Fatalf("popup rendering is not stable\nfirst:  %s\nsecond: %s", result.Markup, again.Markup)
	}
}

func TestFigureContextRendersCaptionOnce(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<figure class="image image-center"><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1" data-caption="stale"><figcaption>Evening light</figcaption></figure>`

	result := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: fragment})
	if result.Variant != VariantWithCaption {
		t.Fatalf("expected captioned variant, got %s", result.Variant)
	}
	c := countWrappers(result.Markup)
	if c.figures != 1 || c.figcaptions != 1 || c.anchors != 0 {
		t.Fatalf("unexpected wrappers: %+v in %s", c, result.Markup)
	}
	if strings.Count(result.Markup, "Evening light") != 1 {
		t.Fatalf("caption must appear once: %s", result.Markup)
	}
	if !strings.Contains(result.Markup, `<figure class="image image-center">`) {
		t.Fatalf("expected figure attributes to be kept: %s", result.Markup)
	}

	again := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: result.Markup})
	if countWrappers(again.Markup) != c {
		t.Fatalf("re-rendering changed wrapper counts: %s", again.Markup)
	}
}

func TestFigureContextExplicitLinkWinsOverZoom(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<figure><a href="https://example.com/story"><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1" data-htmlarea-zoom="true"></a><figcaption>Story</figcaption></figure>`

	result := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: fragment})
	if result.Variant != VariantLinkWithCaption {
		t.Fatalf("expected link with caption, got %s", result.Variant)
	}
	if strings.Count(result.Markup, "<a href=") != 1 || strings.Contains(result.Markup, "data-popup") {
		t.Fatalf("expected one plain anchor: %s", result.Markup)
	}

	again := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: result.Markup})
	if again.Markup != result.Markup {
		t.Fatalf("linked figure is not stable\nfirst:  %s\nsecond: %s", result.Markup, again.Markup)
	}
}

func TestFigureContextKeepsNonWebLinks(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<figure><a href="tel:+4912345"><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1"></a><figcaption>Call</figcaption></figure>`

	result := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: fragment})
	if result.Variant != VariantLinkWithCaption {
		t.Fatalf("expected link with caption, got %s", result.Variant)
	}
	if !strings.Contains(result.Markup, `<a href="tel:+4912345">`) {
		t.Fatalf("expected the tel link to survive: %s", result.Markup)
	}
}

func TestFigureContextBlankCaptionEmitsNoFigure(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<figure><img src="/fileadmin/harbour.jpg" data-htmlarea-file-uid="1"><figcaption>   </figcaption></figure>`

	result := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: fragment})
	if result.Variant != VariantStandalone {
		t.Fatalf("expected standalone variant, got %s", result.Variant)
	}
	if c := countWrappers(result.Markup); c.figures != 0 || c.figcaptions != 0 {
		t.Fatalf("blank caption produced a figure: %s", result.Markup)
	}
}

func TestFigureContextDefersTableFigures(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `<figure class="table"><table><tr><td><img src="a.jpg" data-htmlarea-file-uid="1"></td></tr></table></figure>`

	var received string
	reprocess := func(ctx context.Context, inner string) string {
		received = inner
		return strings.ReplaceAll(inner, "a.jpg", "b.jpg")
	}

	result := adapter.Render(context.Background(), Request{Context: ContextFigure, Fragment: fragment, Reprocess: reprocess})
	if !result.Deferred {
		t.Fatalf("expected table figure to be deferred")
	}
	if strings.Contains(received, "<figure") {
		t.Fatalf("outer figure must be stripped before reprocessing: %q", received)
	}
	want := `<figure class="table"><table><tr><td><img src="b.jpg" data-htmlarea-file-uid="1"></td></tr></table></figure>`
	if result.Markup != want {
		t.Fatalf("unexpected markup\n got: %s\nwant: %s", result.Markup, want)
	}
}

func TestLinkContextNeverEmitsAnchorAndIgnoresZoom(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	link := &LinkAttributes{Href: "/page"}

	withZoom := adapter.Render(context.Background(), Request{
		Context:  ContextLink,
		Fragment: `<img src="/fileadmin/harbour.jpg" width="300" data-htmlarea-file-uid="1" data-htmlarea-zoom="true">`,
		Link:     link,
	})
	withoutZoom := adapter.Render(context.Background(), Request{
		Context:  ContextLink,
		Fragment: `<img src="/fileadmin/harbour.jpg" width="300" data-htmlarea-file-uid="1">`,
		Link:     link,
	})

	for _, result := range []Result{withZoom, withoutZoom} {
		if strings.Contains(result.Markup, "<a") || strings.Contains(result.Markup, "data-popup") {
			t.Fatalf("link context emitted an anchor: %s", result.Markup)
		}
		if result.Variant != VariantLink {
			t.Fatalf("expected link variant, got %s", result.Variant)
		}
	}
	if withZoom.Markup != withoutZoom.Markup {
		t.Fatalf("zoom changed link context output\n with: %s\n without: %s", withZoom.Markup, withoutZoom.Markup)
	}
}

func TestLinkContextKeepsSurroundingContent(t *testing.T) {
	adapter := newTestAdapter(newMockRepository())
	fragment := `Read more <img src="/fileadmin/harbour.jpg" width="300" data-htmlarea-file-uid="1"> here`

	result := adapter.Render(context.Background(), Request{Context: ContextLink, Fragment: fragment, Link: &LinkAttributes{Href: "/"}})
	if !strings.HasPrefix(result.Markup, "Read more <img ") || !strings.HasSuffix(result.Markup, " /> here") {
		t.Fatalf("surrounding content was not preserved: %s", result.Markup)
	}
}

func TestRenderRecoversFromPanics(t *testing.T) {
	repo := newMockRepository()
	repo.panicOnFind = true
	adapter := newTestAdapter(repo)
	fragment := `<img src="a.jpg" data-htmlarea-file-uid="1">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if result.Markup != fragment {
		t.Fatalf("expected original markup after panic, got %q", result.Markup)
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != DiagnosticRecovered {
		t.Fatalf("expected recovery diagnostic, got %+v", result.Diagnostics)
	}
}

func TestRenderReportsLookupFailures(t *testing.T) {
	repo := newMockRepository()
	repo.findErr = errors.New("connection refused")
	adapter := newTestAdapter(repo)
	fragment := `<img src="a.jpg" data-htmlarea-file-uid="1">`

	result := adapter.Render(context.Background(), Request{Context: ContextImage, Fragment: fragment})
	if result.Markup != fragment {
		t.Fatalf("expected original markup, got %q", result.Markup)
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != DiagnosticLookupFailed {
		t.Fatalf("expected lookup diagnostic, got %+v", result.Diagnostics)
	}
}

func TestParseContext(t *testing.T) {
	if c, ok := ParseContext(" Figure "); !ok || c != ContextFigure {
		t.Fatalf("expected figure context, got %v %v", c, ok)
	}
	if _, ok := ParseContext("table"); ok {
		t.Fatalf("expected unknown context to be rejected")
	}
}
