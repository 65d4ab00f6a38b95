package repository

import (
	"rte-image-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProcessedFileRepository interface {
	Find(originalID uint, width, height int) (*models.ProcessedFile, error)
	Save(processed *models.ProcessedFile) error
	DeleteByOriginal(originalID uint) error
}

type processedFileRepository struct {
	db *gorm.DB
}

func NewProcessedFileRepository(db *gorm.DB) ProcessedFileRepository {
	return &processedFileRepository{db: db}
}

func (r *processedFileRepository) Find(originalID uint, width, height int) (*models.ProcessedFile, error) {
	var processed models.ProcessedFile
	err := r.db.Where("original_id = ? AND width = ? AND height = ?", originalID, width, height).
		First(&processed).Error
	if err != nil {
		return nil, err
	}
	return &processed, nil
}

// Save inserts the variant or refreshes the row of the same size.
func (r *processedFileRepository) Save(processed *models.ProcessedFile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_id"}, {Name: "width"}, {Name: "height"}},
		DoUpdates: clause.AssignmentColumns([]string{"identifier", "checksum", "updated_at"}),
	}).Create(processed).Error
}

func (r *processedFileRepository) DeleteByOriginal(originalID uint) error {
	return r.db.Where("original_id = ?", originalID).Delete(&models.ProcessedFile{}).Error
}
