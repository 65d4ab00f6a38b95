package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	nethtml "golang.org/x/net/html"
	"gorm.io/gorm"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/repository"
	"rte-image-backend/pkg/cache"
	"rte-image-backend/pkg/logger"
)

var ErrContentNotFound = errors.New("content element not found")

// RenderedContent is a rich-text field after the image pipeline ran over it.
type RenderedContent struct {
	ID          uint                     `json:"id,omitempty"`
	HTML        string                   `json:"html"`
	Images      int                      `json:"images"`
	Changed     int                      `json:"changed"`
	Diagnostics []imagerender.Diagnostic `json:"diagnostics"`
}

// ContentRenderService is the host pipeline: it walks rich-text HTML and
// calls the image adapter from the image, figure and link hooks.
type ContentRenderService struct {
	adapter  *imagerender.Adapter
	content  repository.ContentRepository
	cache    *cache.Cache
	renders  *prometheus.CounterVec
	cacheTTL time.Duration
}

func NewContentRenderService(adapter *imagerender.Adapter, content repository.ContentRepository, cacheService *cache.Cache, cacheTTL time.Duration) *ContentRenderService {
	return &ContentRenderService{
		adapter:  adapter,
		content:  content,
		cache:    cacheService,
		cacheTTL: cacheTTL,
	}
}

// RegisterMetrics exposes render counters on registerer.
func (s *ContentRenderService) RegisterMetrics(registerer prometheus.Registerer) error {
	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rte_image",
		Name:      "renders_total",
		Help:      "Number of image fragments processed by the rendering pipeline.",
	}, []string{"context", "variant", "changed"})

	if err := registerer.Register(renders); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				s.renders = existing
				return nil
			}
		}
		return err
	}
	s.renders = renders
	return nil
}

// RenderFragment runs a single adapter call.
func (s *ContentRenderService) RenderFragment(ctx context.Context, req imagerender.Request) imagerender.Result {
	if req.Context == imagerender.ContextFigure && req.Reprocess == nil {
		req.Reprocess = s.reprocess
	}
	result := s.adapter.Render(ctx, req)
	s.observe(req.Context, result)
	return result
}

// RenderHTML runs the pipeline over a whole rich-text document. Bytes
// outside of image markup are preserved.
func (s *ContentRenderService) RenderHTML(ctx context.Context, html string) *RenderedContent {
	out := &RenderedContent{}
	out.HTML = s.walk(ctx, html, out)
	return out
}

// RenderRecord renders the bodytext of a stored content element.
func (s *ContentRenderService) RenderRecord(ctx context.Context, id uint) (*RenderedContent, error) {
	if s.cache != nil {
		var cached RenderedContent
		if err := s.cache.GetCachedRenderedContent(id, &cached); err == nil {
			return &cached, nil
		}
	}

	element, err := s.content.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("load content element %d: %w", id, err)
	}

	rendered := s.RenderHTML(ctx, element.Bodytext)
	rendered.ID = element.ID

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.CacheRenderedContent(id, rendered, s.cacheTTL); err != nil {
			logger.Warn("Rendered content cache write failed", map[string]interface{}{"content_id": id, "error": err.Error()})
		}
	}
	return rendered, nil
}

func (s *ContentRenderService) reprocess(ctx context.Context, fragment string) string {
	return s.walk(ctx, fragment, &RenderedContent{})
}

func (s *ContentRenderService) walk(ctx context.Context, html string, out *RenderedContent) string {
	tokens := imagerender.Tokenize(html)

	var b strings.Builder
	b.Grow(len(html))

	for i := 0; i < len(tokens); {
		tok := tokens[i]

		switch {
		case tok.IsStart("figure") && tok.Type == nethtml.StartTagToken:
			end := matchingEnd(tokens, i, "figure")
			if end < 0 {
				b.WriteString(tok.Raw)
				i++
				continue
			}
			fragment := html[tok.Offset : tokens[end].Offset+len(tokens[end].Raw)]
			result := s.RenderFragment(ctx, imagerender.Request{
				Context:  imagerender.ContextFigure,
				Fragment: fragment,
				Reprocess: func(ctx context.Context, inner string) string {
					return s.walk(ctx, inner, out)
				},
			})
			s.collect(out, result, !result.Deferred)
			b.WriteString(result.Markup)
			i = end + 1

		case tok.IsStart("a") && tok.Type == nethtml.StartTagToken:
			end := matchingEnd(tokens, i, "a")
			if end < 0 {
				b.WriteString(tok.Raw)
				i++
				continue
			}
			inner := html[tok.Offset+len(tok.Raw) : tokens[end].Offset]
			if len(imagerender.ImageTags(inner)) == 0 {
				b.WriteString(html[tok.Offset : tokens[end].Offset+len(tokens[end].Raw)])
				i = end + 1
				continue
			}
			result := s.RenderFragment(ctx, imagerender.Request{
				Context:  imagerender.ContextLink,
				Fragment: inner,
				Link:     anchorLink(tok),
			})
			s.collect(out, result, true)
			b.WriteString(tok.Raw)
			b.WriteString(result.Markup)
			b.WriteString(tokens[end].Raw)
			i = end + 1

		case tok.IsStart("img"):
			result := s.RenderFragment(ctx, imagerender.Request{
				Context:  imagerender.ContextImage,
				Fragment: tok.Raw,
			})
			s.collect(out, result, true)
			b.WriteString(result.Markup)
			i++

		default:
			b.WriteString(tok.Raw)
			i++
		}
	}

	return b.String()
}

func (s *ContentRenderService) collect(out *RenderedContent, result imagerender.Result, counted bool) {
	out.Diagnostics = append(out.Diagnostics, result.Diagnostics...)
	if !counted {
		return
	}
	out.Images++
	if result.Changed {
		out.Changed++
	}
}

func (s *ContentRenderService) observe(c imagerender.Context, result imagerender.Result) {
	if s.renders == nil {
		return
	}
	variant := result.Variant.String()
	if result.Deferred {
		variant = "deferred"
	}
	changed := "false"
	if result.Changed {
		changed = "true"
	}
	s.renders.WithLabelValues(c.String(), variant, changed).Inc()
}

// InvalidateRecord drops a cached rendering of a content element.
func (s *ContentRenderService) InvalidateRecord(id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRenderedContent(id); err != nil {
		logger.Warn("Rendered content cache invalidation failed", map[string]interface{}{"content_id": id, "error": err.Error()})
	}
}

func anchorLink(tok imagerender.Token) *imagerender.LinkAttributes {
	link := &imagerender.LinkAttributes{}
	link.Href, _ = tok.Attr.Get("href")
	link.Target, _ = tok.Attr.Get("target")
	link.Title, _ = tok.Attr.Get("title")
	link.Class, _ = tok.Attr.Get("class")
	if popup, ok := tok.Attr.Get(imagerender.AttrPopup); ok {
		link.Popup = strings.TrimSpace(popup) == "true"
	}
	return link
}

// matchingEnd returns the index of the end tag closing tokens[start], or -1.
func matchingEnd(tokens []imagerender.Token, start int, name string) int {
	depth := 0
	for i := start; i < len(tokens); i++ {
		switch {
		case tokens[i].IsStart(name) && tokens[i].Type == nethtml.StartTagToken:
			depth++
		case tokens[i].IsEnd(name):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
