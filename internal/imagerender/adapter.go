package imagerender

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rte-image-backend/pkg/logger"
)

// Context is the host hook an adapter call was made from.
type Context int

const (
	// ContextImage is a lone <img> tag.
	ContextImage Context = iota
	// ContextFigure is a whole <figure>...</figure> subtree.
	ContextFigure
	// ContextLink is content inside an <a> the host emits itself.
	ContextLink
)

var contextNames = map[Context]string{
	ContextImage:  "image",
	ContextFigure: "figure",
	ContextLink:   "link",
}

func (c Context) String() string {
	if name, ok := contextNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseContext maps a context name to a Context.
func ParseContext(name string) (Context, bool) {
	for c, n := range contextNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return c, true
		}
	}
	return 0, false
}

// ReprocessFunc hands markup back to the host pipeline.
type ReprocessFunc func(ctx context.Context, fragment string) string

type Request struct {
	Context  Context
	Fragment string
	// Link describes the anchor owned by the host in ContextLink.
	Link *LinkAttributes
	// Reprocess is used for figures that do not wrap a single image.
	Reprocess ReprocessFunc
}

type Result struct {
	Markup      string
	Variant     TemplateVariant
	Changed     bool
	Deferred    bool
	Diagnostics []Diagnostic
}

// Adapter runs extraction, resolution, planning and serialization for one
// fragment. It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	resolver *Resolver
	opts     Options
}

func NewAdapter(resolver *Resolver, opts Options) *Adapter {
	return &Adapter{resolver: resolver, opts: opts}
}

// Render never fails: markup it cannot handle is returned unchanged.
func (a *Adapter) Render(ctx context.Context, req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "Image rendering panicked", map[string]interface{}{
				"context": req.Context.String(),
			})
			result = Result{
				Markup: req.Fragment,
				Diagnostics: []Diagnostic{{
					Code:    DiagnosticRecovered,
					Message: fmt.Sprint(r),
				}},
			}
		}
	}()

	switch req.Context {
	case ContextImage:
		result = a.renderImage(ctx, req)
	case ContextFigure:
		result = a.renderFigure(ctx, req)
	case ContextLink:
		result = a.renderLink(ctx, req)
	default:
		result = unchanged(req.Fragment)
	}

	a.logDiagnostics(req.Context, result.Diagnostics)
	return result
}

func (a *Adapter) renderImage(ctx context.Context, req Request) Result {
	ref, ok := singleReference(req.Fragment)
	if !ok {
		return unchanged(req.Fragment)
	}

	// Captioned images are rendered by the figure hook, which needs the
	// file reference intact.
	if ref.HasCaptionMarker() {
		return unchanged(req.Fragment)
	}
	if !ref.HasFile() {
		return a.renderExternal(req.Fragment, ref)
	}

	img, diags, ok := a.resolve(ctx, ref)
	if !ok {
		return withDiagnostics(unchanged(req.Fragment), diags)
	}

	link, linkDiags := a.linkFor(ctx, ref, img.Asset)
	builder := NewPlanBuilder(ref).Resolved(img).Link(link).WithoutCaption()
	return a.serialize(req.Fragment, builder.Build(), append(diags, linkDiags...))
}

func (a *Adapter) renderFigure(ctx context.Context, req Request) Result {
	open, inner, closing, ok := SplitFigure(req.Fragment)
	if !ok {
		return unchanged(req.Fragment)
	}

	if !IsImageFigure(req.Fragment) {
		if req.Reprocess == nil {
			result := unchanged(req.Fragment)
			result.Deferred = true
			return result
		}
		markup := open + req.Reprocess(ctx, inner) + closing
		return Result{
			Markup:   markup,
			Changed:  markup != req.Fragment,
			Deferred: true,
		}
	}

	ref, ok := singleReference(req.Fragment)
	if !ok {
		return unchanged(req.Fragment)
	}
	if !ref.HasFile() {
		return a.renderExternal(req.Fragment, ref)
	}

	img, diags, ok := a.resolve(ctx, ref)
	if !ok {
		return withDiagnostics(unchanged(req.Fragment), diags)
	}

	link, linkDiags := a.linkFor(ctx, ref, img.Asset)
	builder := NewPlanBuilder(ref).Resolved(img).Link(link)
	return a.serialize(req.Fragment, builder.Build(), append(diags, linkDiags...))
}

func (a *Adapter) renderLink(ctx context.Context, req Request) Result {
	images := ImageTags(req.Fragment)
	if len(images) != 1 {
		return unchanged(req.Fragment)
	}
	tag := images[0]

	ref, ok := singleReference(tag.Raw)
	if !ok || !ref.HasFile() {
		return unchanged(req.Fragment)
	}
	ref.Zoom = false

	img, diags, ok := a.resolve(ctx, ref)
	if !ok {
		return withDiagnostics(unchanged(req.Fragment), diags)
	}

	var owned *LinkSpec
	if req.Link != nil {
		owned = &LinkSpec{
			URL:     req.Link.Href,
			Target:  req.Link.Target,
			Title:   req.Link.Title,
			Class:   req.Link.Class,
			IsPopup: req.Link.Popup,
		}
	} else {
		owned = &LinkSpec{}
	}

	plan := NewPlanBuilder(ref).Resolved(img).OwnedLink(owned).WithoutCaption().Build()
	result := a.serialize(tag.Raw, plan, diags)
	if !result.Changed {
		result.Markup = req.Fragment
		return result
	}

	result.Markup = req.Fragment[:tag.Offset] + result.Markup + req.Fragment[tag.Offset+len(tag.Raw):]
	return result
}

// renderExternal passes images without a managed file through, only
// replacing an SVG data URI whose payload the sanitizer changed.
func (a *Adapter) renderExternal(fragment string, ref *ImageReference) Result {
	plan := NewPlanBuilder(ref).Build()
	result := unchanged(fragment)
	result.Variant = SelectTemplate(&plan)

	sanitized := a.resolver.SanitizeSrc(ref.Src)
	if sanitized != ref.Src {
		result.Markup = ReplaceImageSrc(fragment, sanitized)
		result.Changed = result.Markup != fragment
	}
	return result
}

func (a *Adapter) resolve(ctx context.Context, ref *ImageReference) (*ResolvedImage, []Diagnostic, bool) {
	img, err := a.resolver.ResolveImage(ctx, ref)
	if err == nil {
		return img, img.Diagnostics, true
	}
	if errors.Is(err, ErrAssetNotFound) {
		return nil, nil, false
	}

	var uid uint
	if ref.FileUID != nil {
		uid = *ref.FileUID
	}
	return nil, []Diagnostic{{Code: DiagnosticLookupFailed, Message: err.Error(), FileUID: uid}}, false
}

// linkFor resolves the link around an image. An explicit anchor wins over
// the zoom flag; an anchor from an earlier popup rendering is re-derived.
func (a *Adapter) linkFor(ctx context.Context, ref *ImageReference, asset *Asset) (*LinkSpec, []Diagnostic) {
	if ref.Link != nil && !ref.Link.Popup {
		return &LinkSpec{
			URL:    ref.Link.Href,
			Target: ref.Link.Target,
			Title:  ref.Link.Title,
			Class:  ref.Link.Class,
		}, nil
	}
	if ref.Link == nil && !ref.Zoom {
		return nil, nil
	}

	url, width, height, diags := a.resolver.ResolvePopup(ctx, asset)
	spec := &LinkSpec{
		URL:     url,
		Target:  a.opts.Popup.Target,
		Class:   a.opts.Popup.Class,
		Rel:     a.opts.Popup.Rel,
		IsPopup: true,
	}
	if width > 0 && height > 0 {
		spec.PopupConfig = map[string]string{
			"width":  strconv.Itoa(width),
			"height": strconv.Itoa(height),
		}
	}
	return spec, diags
}

func (a *Adapter) serialize(fragment string, plan RenderPlan, diags []Diagnostic) Result {
	markup, err := Serialize(plan)
	if err != nil {
		var uid uint
		if plan.FileUID != nil {
			uid = *plan.FileUID
		}
		diags = append(diags, Diagnostic{Code: DiagnosticRecovered, Message: err.Error(), FileUID: uid})
		return withDiagnostics(unchanged(fragment), diags)
	}

	return Result{
		Markup:      markup,
		Variant:     SelectTemplate(&plan),
		Changed:     markup != fragment,
		Diagnostics: diags,
	}
}

func (a *Adapter) logDiagnostics(c Context, diags []Diagnostic) {
	for _, d := range diags {
		logger.Warn("Image rendering degraded", map[string]interface{}{
			"context":  c.String(),
			"code":     string(d.Code),
			"file_uid": d.FileUID,
			"message":  d.Message,
		})
	}
}

func singleReference(fragment string) (*ImageReference, bool) {
	refs, err := Extract(fragment)
	if err != nil || len(refs) != 1 {
		return nil, false
	}
	return &refs[0], true
}

func unchanged(fragment string) Result {
	return Result{Markup: fragment}
}

func withDiagnostics(result Result, diags []Diagnostic) Result {
	result.Diagnostics = diags
	return result
}
