package service

import (
	"context"
	"mime/multipart"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
)

type RenderUseCase interface {
	RenderFragment(context.Context, imagerender.Request) imagerender.Result
	RenderHTML(context.Context, string) *RenderedContent
	RenderRecord(context.Context, uint) (*RenderedContent, error)
}

type ReferenceUseCase interface {
	Reindex(context.Context) (*ReindexReport, error)
	Validate(context.Context, []uint) (*ValidationReport, error)
	Fix(context.Context, []uint, bool) (*FixReport, error)
	References(string, uint) ([]models.SoftReference, error)
}

type FileUseCase interface {
	Upload(*multipart.FileHeader, string, models.UpdateFileRequest) (*models.File, error)
	GetByID(uint) (*models.File, error)
	UpdateMetadata(uint, models.UpdateFileRequest) (*models.File, error)
	Delete(uint) error
}

var (
	_ RenderUseCase    = (*ContentRenderService)(nil)
	_ ReferenceUseCase = (*ReferenceService)(nil)
	_ FileUseCase      = (*UploadService)(nil)
)
