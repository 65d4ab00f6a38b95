package repository

import (
	"rte-image-backend/internal/models"

	"gorm.io/gorm"
)

type FileRepository interface {
	Create(file *models.File) error
	Update(file *models.File) error
	GetByID(id uint) (*models.File, error)
	GetByIdentifier(identifier string) (*models.File, error)
	UpdateDimensions(id uint, width, height int) error
	MarkMissing(id uint, missing bool) error
	Delete(id uint) error
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(file *models.File) error {
	return r.db.Create(file).Error
}

func (r *fileRepository) Update(file *models.File) error {
	return r.db.Save(file).Error
}

func (r *fileRepository) GetByID(id uint) (*models.File, error) {
	var file models.File
	if err := r.db.First(&file, id).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) GetByIdentifier(identifier string) (*models.File, error) {
	var file models.File
	if err := r.db.Where("identifier = ?", identifier).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) UpdateDimensions(id uint, width, height int) error {
	return r.db.Model(&models.File{}).Where("id = ?", id).
		Updates(map[string]interface{}{"width": width, "height": height}).Error
}

func (r *fileRepository) MarkMissing(id uint, missing bool) error {
	return r.db.Model(&models.File{}).Where("id = ?", id).Update("missing", missing).Error
}

func (r *fileRepository) Delete(id uint) error {
	return r.db.Delete(&models.File{}, id).Error
}
