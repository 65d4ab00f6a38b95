package models

import (
	"path"
	"strings"
	"time"

	"gorm.io/gorm"
)

// File is a managed file below the storage directory.
type File struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Identifier is the path relative to the storage directory.
	Identifier  string `gorm:"uniqueIndex;not null" json:"identifier"`
	Name        string `gorm:"not null" json:"name"`
	Extension   string `gorm:"size:16" json:"extension"`
	MimeType    string `gorm:"size:128" json:"mime_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Alternative string `json:"alternative"`
	Title       string `json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Missing     bool   `gorm:"default:false" json:"missing"`
}

func (File) TableName() string {
	return "sys_file"
}

// PublicPath joins the identifier onto a public base URL.
func (f *File) PublicPath(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path.Clean("/"+f.Identifier), "/")
}

// ProcessedFile is a scaled variant of a File.
type ProcessedFile struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OriginalID uint   `gorm:"uniqueIndex:idx_processed_variant;not null" json:"original_id"`
	Original   File   `gorm:"foreignKey:OriginalID" json:"-"`
	Width      int    `gorm:"uniqueIndex:idx_processed_variant" json:"width"`
	Height     int    `gorm:"uniqueIndex:idx_processed_variant" json:"height"`
	Identifier string `gorm:"not null" json:"identifier"`
	// Checksum identifies the original file state the variant was built from.
	Checksum string `gorm:"size:64" json:"checksum"`
}

func (ProcessedFile) TableName() string {
	return "sys_file_processedfile"
}

// ContentElement is a content record with a rich-text body.
type ContentElement struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Header   string `json:"header"`
	CType    string `gorm:"column:ctype;default:'text'" json:"ctype"`
	Bodytext string `gorm:"type:text" json:"bodytext"`
}

func (ContentElement) TableName() string {
	return "tt_content"
}

// SoftReference is one row of the reference index.
type SoftReference struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Hash          string `gorm:"uniqueIndex;size:36;not null" json:"hash"`
	Tablename     string `gorm:"index:idx_refindex_record;size:64;not null" json:"tablename"`
	RecUID        uint   `gorm:"column:recuid;index:idx_refindex_record;not null" json:"recuid"`
	Field         string `gorm:"size:64;not null" json:"field"`
	StructurePath string `json:"structure_path"`
	SoftrefKey    string `gorm:"size:32" json:"softref_key"`
	RefTable      string `gorm:"index:idx_refindex_target;size:64;not null" json:"ref_table"`
	RefUID        uint   `gorm:"column:ref_uid;index:idx_refindex_target" json:"ref_uid"`
	RefString     string `json:"ref_string"`
}

func (SoftReference) TableName() string {
	return "sys_refindex"
}
