package models

type RenderLinkRequest struct {
	Href   string `json:"href" binding:"required,max=2048"`
	Target string `json:"target" binding:"max=64"`
	Title  string `json:"title" binding:"max=255"`
	Class  string `json:"class" binding:"max=255"`
	Popup  bool   `json:"popup"`
}

type RenderRequest struct {
	Context  string             `json:"context" binding:"required,render_context"`
	Fragment string             `json:"fragment" binding:"required"`
	Link     *RenderLinkRequest `json:"link"`
}

type RenderContentRequest struct {
	HTML string `json:"html" binding:"required"`
}

type FixReferencesRequest struct {
	RecordIDs []uint `json:"record_ids"`
	DryRun    bool   `json:"dry_run"`
}

type UpdateFileRequest struct {
	Alternative *string `json:"alternative" binding:"omitempty,max=1024"`
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description"`
}
