package repository

import (
	"rte-image-backend/internal/models"

	"gorm.io/gorm"
)

type ReferenceRepository interface {
	ReplaceForRecord(table string, recordUID uint, refs []models.SoftReference) error
	ListForRecord(table string, recordUID uint) ([]models.SoftReference, error)
	CountByTarget(refTable string, refUID uint) (int64, error)
}

type referenceRepository struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

// ReplaceForRecord swaps all index rows of a record in one transaction.
func (r *referenceRepository) ReplaceForRecord(table string, recordUID uint, refs []models.SoftReference) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tablename = ? AND recuid = ?", table, recordUID).
			Delete(&models.SoftReference{}).Error; err != nil {
			return err
		}
		if len(refs) == 0 {
			return nil
		}
		return tx.Create(&refs).Error
	})
}

func (r *referenceRepository) ListForRecord(table string, recordUID uint) ([]models.SoftReference, error) {
	var refs []models.SoftReference
	err := r.db.Where("tablename = ? AND recuid = ?", table, recordUID).Order("id ASC").Find(&refs).Error
	return refs, err
}

func (r *referenceRepository) CountByTarget(refTable string, refUID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.SoftReference{}).
		Where("ref_table = ? AND ref_uid = ?", refTable, refUID).
		Count(&count).Error
	return count, err
}
