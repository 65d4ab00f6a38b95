package repository

import (
	"rte-image-backend/internal/models"

	"gorm.io/gorm"
)

type ContentRepository interface {
	GetByID(id uint) (*models.ContentElement, error)
	GetByIDs(ids []uint) ([]models.ContentElement, error)
	ListBatch(afterID uint, limit int) ([]models.ContentElement, error)
	UpdateBodytext(id uint, bodytext string) error
}

type contentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) GetByID(id uint) (*models.ContentElement, error) {
	var element models.ContentElement
	if err := r.db.First(&element, id).Error; err != nil {
		return nil, err
	}
	return &element, nil
}

func (r *contentRepository) GetByIDs(ids []uint) ([]models.ContentElement, error) {
	var elements []models.ContentElement
	if len(ids) == 0 {
		return elements, nil
	}
	err := r.db.Where("id IN ?", ids).Order("id ASC").Find(&elements).Error
	return elements, err
}

// ListBatch returns up to limit elements with an id greater than afterID,
// ordered by id, for keyset pagination over the whole table.
func (r *contentRepository) ListBatch(afterID uint, limit int) ([]models.ContentElement, error) {
	var elements []models.ContentElement
	err := r.db.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&elements).Error
	return elements, err
}

func (r *contentRepository) UpdateBodytext(id uint, bodytext string) error {
	return r.db.Model(&models.ContentElement{}).Where("id = ?", id).Update("bodytext", bodytext).Error
}
