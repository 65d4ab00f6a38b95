package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"gorm.io/gorm"

	"rte-image-backend/internal/models"
	"rte-image-backend/internal/repository"
)

type fakeFileRepository struct {
	files      map[uint]*models.File
	missing    []uint
	dimensions map[uint][2]int
}

func newFakeFileRepository(files ...*models.File) *fakeFileRepository {
	repo := &fakeFileRepository{files: make(map[uint]*models.File), dimensions: make(map[uint][2]int)}
	for _, f := range files {
		repo.files[f.ID] = f
	}
	return repo
}

func (r *fakeFileRepository) Create(file *models.File) error {
	if file.ID == 0 {
		for id := range r.files {
			if id >= file.ID {
				file.ID = id + 1
			}
		}
		if file.ID == 0 {
			file.ID = 1
		}
	}
	r.files[file.ID] = file
	return nil
}

func (r *fakeFileRepository) Update(file *models.File) error {
	r.files[file.ID] = file
	return nil
}

func (r *fakeFileRepository) GetByID(id uint) (*models.File, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeFileRepository) GetByIdentifier(identifier string) (*models.File, error) {
	for _, f := range r.files {
		if f.Identifier == identifier {
			copied := *f
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeFileRepository) UpdateDimensions(id uint, width, height int) error {
	r.dimensions[id] = [2]int{width, height}
	if f, ok := r.files[id]; ok {
		f.Width, f.Height = width, height
	}
	return nil
}

func (r *fakeFileRepository) MarkMissing(id uint, missing bool) error {
	if missing {
		r.missing = append(r.missing, id)
	}
	if f, ok := r.files[id]; ok {
		f.Missing = missing
	}
	return nil
}

func (r *fakeFileRepository) Delete(id uint) error {
	delete(r.files, id)
	return nil
}

var _ repository.FileRepository = (*fakeFileRepository)(nil)

type fakeProcessedRepository struct {
	rows  map[[3]int]*models.ProcessedFile
	saves int
}

func newFakeProcessedRepository() *fakeProcessedRepository {
	return &fakeProcessedRepository{rows: make(map[[3]int]*models.ProcessedFile)}
}

func (r *fakeProcessedRepository) Find(originalID uint, width, height int) (*models.ProcessedFile, error) {
	row, ok := r.rows[[3]int{int(originalID), width, height}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *fakeProcessedRepository) Save(processed *models.ProcessedFile) error {
	r.saves++
	copied := *processed
	r.rows[[3]int{int(processed.OriginalID), processed.Width, processed.Height}] = &copied
	return nil
}

func (r *fakeProcessedRepository) DeleteByOriginal(originalID uint) error {
	for key := range r.rows {
		if key[0] == int(originalID) {
			delete(r.rows, key)
		}
	}
	return nil
}

var _ repository.ProcessedFileRepository = (*fakeProcessedRepository)(nil)

type fakeContentRepository struct {
	elements map[uint]*models.ContentElement
	updates  map[uint]string
}

func newFakeContentRepository(elements ...*models.ContentElement) *fakeContentRepository {
	repo := &fakeContentRepository{elements: make(map[uint]*models.ContentElement), updates: make(map[uint]string)}
	for _, e := range elements {
		repo.elements[e.ID] = e
	}
	return repo
}

func (r *fakeContentRepository) sortedIDs() []uint {
	ids := make([]uint, 0, len(r.elements))
	for id := range r.elements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *fakeContentRepository) GetByID(id uint) (*models.ContentElement, error) {
	e, ok := r.elements[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *fakeContentRepository) GetByIDs(ids []uint) ([]models.ContentElement, error) {
	var out []models.ContentElement
	for _, id := range r.sortedIDs() {
		for _, wanted := range ids {
			if id == wanted {
				out = append(out, *r.elements[id])
			}
		}
	}
	return out, nil
}

func (r *fakeContentRepository) ListBatch(afterID uint, limit int) ([]models.ContentElement, error) {
	var out []models.ContentElement
	for _, id := range r.sortedIDs() {
		if id > afterID && len(out) < limit {
			out = append(out, *r.elements[id])
		}
	}
	return out, nil
}

func (r *fakeContentRepository) UpdateBodytext(id uint, bodytext string) error {
	r.updates[id] = bodytext
	if e, ok := r.elements[id]; ok {
		e.Bodytext = bodytext
	}
	return nil
}

var _ repository.ContentRepository = (*fakeContentRepository)(nil)

type fakeReferenceRepository struct {
	byRecord map[uint][]models.SoftReference
}

func newFakeReferenceRepository() *fakeReferenceRepository {
	return &fakeReferenceRepository{byRecord: make(map[uint][]models.SoftReference)}
}

func (r *fakeReferenceRepository) ReplaceForRecord(table string, recordUID uint, refs []models.SoftReference) error {
	r.byRecord[recordUID] = append([]models.SoftReference(nil), refs...)
	return nil
}

func (r *fakeReferenceRepository) ListForRecord(table string, recordUID uint) ([]models.SoftReference, error) {
	return r.byRecord[recordUID], nil
}

func (r *fakeReferenceRepository) CountByTarget(refTable string, refUID uint) (int64, error) {
	var count int64
	for _, refs := range r.byRecord {
		for _, ref := range refs {
			if ref.RefTable == refTable && ref.RefUID == refUID {
				count++
			}
		}
	}
	return count, nil
}

var _ repository.ReferenceRepository = (*fakeReferenceRepository)(nil)

// writePNG stores a width x height PNG below dir and returns its path.
func writePNG(t *testing.T, dir, identifier string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, height/2, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	path := filepath.Join(dir, filepath.FromSlash(identifier))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}
