package imagerender

import "strings"

// LinkSpec is the resolved link around an image. A popup link opens the
// enlarged image; PopupConfig is emitted as data-popup-<key> attributes.
type LinkSpec struct {
	URL         string
	Target      string
	Title       string
	Class       string
	Rel         string
	IsPopup     bool
	PopupConfig map[string]string
}

// RenderPlan is the fully resolved description of one image occurrence.
type RenderPlan struct {
	Src    string
	Width  int
	Height int
	Alt    *string
	Title  *string
	Class  string

	Quality       Quality
	AltOverride   Override
	TitleOverride Override

	Attributes       Attributes
	FigureAttributes Attributes

	Caption *string
	Link    *LinkSpec
	// LinkOwnedByCaller marks an image already wrapped by an anchor that the
	// caller emits itself.
	LinkOwnedByCaller bool
	IsMagicImage      bool

	FileUID   *uint
	FileTable string

	// Source is the original markup, re-emitted verbatim for external images.
	Source string
}

// IsExternal reports whether the plan describes an image without a managed file.
func (p *RenderPlan) IsExternal() bool {
	return p.FileUID == nil
}

// HasCaption reports whether the plan carries a non-blank caption.
func (p *RenderPlan) HasCaption() bool {
	return p.Caption != nil && strings.TrimSpace(*p.Caption) != ""
}

// PlanBuilder assembles a RenderPlan from an ImageReference and the results
// of resolution.
type PlanBuilder struct {
	plan RenderPlan
}

func NewPlanBuilder(ref *ImageReference) *PlanBuilder {
	b := &PlanBuilder{plan: RenderPlan{
		Src:              ref.Src,
		Width:            ref.Width,
		Height:           ref.Height,
		Class:            ref.Class,
		Quality:          ref.Quality(),
		AltOverride:      ref.AltOverride,
		TitleOverride:    ref.TitleOverride,
		Attributes:       ref.Attributes.Clone(),
		FigureAttributes: ref.FigureAttributes.Clone(),
		Caption:          ref.Caption,
		FileUID:          ref.FileUID,
		FileTable:        ref.Table(),
		Source:           ref.Source,
	}}

	if ref.Alt != "" || ref.AltOverride.Present {
		alt := ref.Alt
		b.plan.Alt = &alt
	}
	if ref.Title != "" {
		title := ref.Title
		b.plan.Title = &title
	}
	if ref.Link != nil {
		b.plan.Link = &LinkSpec{
			URL:     ref.Link.Href,
			Target:  ref.Link.Target,
			Title:   ref.Link.Title,
			Class:   ref.Link.Class,
			IsPopup: ref.Link.Popup,
		}
	}
	return b
}

// Resolved applies the resolved src, size and alt/title of a managed file.
func (b *PlanBuilder) Resolved(img *ResolvedImage) *PlanBuilder {
	if img == nil {
		return b
	}
	b.plan.Src = img.Src
	b.plan.Width = img.Width
	b.plan.Height = img.Height
	b.plan.Alt = img.Alt
	b.plan.Title = img.Title
	b.plan.IsMagicImage = img.Processed
	return b
}

// Link sets the link wrapper emitted around the image.
func (b *PlanBuilder) Link(spec *LinkSpec) *PlanBuilder {
	b.plan.Link = spec
	b.plan.LinkOwnedByCaller = false
	return b
}

// OwnedLink records a link whose anchor is emitted by the caller.
func (b *PlanBuilder) OwnedLink(spec *LinkSpec) *PlanBuilder {
	b.plan.Link = spec
	b.plan.LinkOwnedByCaller = spec != nil
	return b
}

func (b *PlanBuilder) WithoutCaption() *PlanBuilder {
	b.plan.Caption = nil
	return b
}

func (b *PlanBuilder) Build() RenderPlan {
	plan := b.plan
	if plan.Caption != nil {
		caption := strings.TrimSpace(*plan.Caption)
		if caption == "" {
			plan.Caption = nil
		} else {
			plan.Caption = &caption
		}
	}
	if plan.Link != nil {
		link := *plan.Link
		plan.Link = &link
	}
	return plan
}
