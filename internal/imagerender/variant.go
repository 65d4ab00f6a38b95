package imagerender

// TemplateVariant is the markup shape chosen for one image.
type TemplateVariant int

const (
	VariantStandalone TemplateVariant = iota
	VariantWithCaption
	VariantLink
	VariantLinkWithCaption
	VariantPopup
	VariantPopupWithCaption
)

var variantNames = [...]string{
	VariantStandalone:       "standalone",
	VariantWithCaption:      "with_caption",
	VariantLink:             "link",
	VariantLinkWithCaption:  "link_with_caption",
	VariantPopup:            "popup",
	VariantPopupWithCaption: "popup_with_caption",
}

func (v TemplateVariant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return "unknown"
	}
	return variantNames[v]
}

func (v TemplateVariant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// HasCaption reports whether the variant renders a figure.
func (v TemplateVariant) HasCaption() bool {
	return v == VariantWithCaption || v == VariantLinkWithCaption || v == VariantPopupWithCaption
}

// SelectTemplate picks the variant for plan. A popup link always wins over a
// regular link, and a caption only adds the captioned form of the link state.
func SelectTemplate(plan *RenderPlan) TemplateVariant {
	caption := plan.HasCaption()

	switch {
	case plan.Link != nil && plan.Link.IsPopup && caption:
		return VariantPopupWithCaption
	case plan.Link != nil && plan.Link.IsPopup:
		return VariantPopup
	case plan.Link != nil && caption:
		return VariantLinkWithCaption
	case plan.Link != nil:
		return VariantLink
	case caption:
		return VariantWithCaption
	default:
		return VariantStandalone
	}
}
