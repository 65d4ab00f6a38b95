package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rte-image-backend/internal/models"
	"rte-image-backend/pkg/cache"
	"rte-image-backend/pkg/logger"
)

type jobCounter interface {
	ActiveJobCount() int
}

func HealthCheck(jobs jobCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"time":        time.Now().Format(time.RFC3339),
			"active_jobs": jobs.ActiveJobCount(),
		})
	}
}

func GetStatistics(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now().UTC()

		var stats struct {
			TotalFiles          int64 `json:"total_files"`
			MissingFiles        int64 `json:"missing_files"`
			UnsizedFiles        int64 `json:"unsized_files"`
			ProcessedFiles      int64 `json:"processed_files"`
			ContentElements     int64 `json:"content_elements"`
			References          int64 `json:"references"`
			StorageBytes        int64 `json:"storage_bytes"`
			FilesLast7Days      int64 `json:"files_last_7_days"`
			ProcessedLast24Hour int64 `json:"processed_last_24_hours"`
		}

		db.Model(&models.File{}).Count(&stats.TotalFiles)
		db.Model(&models.File{}).Where("missing = ?", true).Count(&stats.MissingFiles)
		db.Model(&models.File{}).Where("width = 0 OR height = 0").Count(&stats.UnsizedFiles)
		db.Model(&models.ProcessedFile{}).Count(&stats.ProcessedFiles)
		db.Model(&models.ContentElement{}).Count(&stats.ContentElements)
		db.Model(&models.SoftReference{}).Count(&stats.References)
		db.Model(&models.File{}).Select("COALESCE(SUM(size), 0)").Row().Scan(&stats.StorageBytes)

		db.Model(&models.File{}).
			Where("created_at >= ?", now.AddDate(0, 0, -7)).
			Count(&stats.FilesLast7Days)
		db.Model(&models.ProcessedFile{}).
			Where("created_at >= ?", now.Add(-24*time.Hour)).
			Count(&stats.ProcessedLast24Hour)

		var mostReferenced []struct {
			RefUID uint  `json:"file_id"`
			Count  int64 `json:"count"`
		}

		db.Model(&models.SoftReference{}).
			Select("ref_uid, COUNT(*) AS count").
			Where("ref_table = ?", models.File{}.TableName()).
			Group("ref_uid").
			Order("count DESC").
			Limit(5).
			Scan(&mostReferenced)

		type timeBucket struct {
			Period time.Time
			Count  int64
		}

		startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		windowStart := startOfToday.AddDate(0, 0, -29)

		var processedBuckets []timeBucket
		db.Model(&models.ProcessedFile{}).
			Select("DATE_TRUNC('day', created_at) AS period, COUNT(*) AS count").
			Where("created_at >= ?", windowStart).
			Group("period").
			Order("period").
			Scan(&processedBuckets)

		processedCounts := make(map[string]int64, len(processedBuckets))
		for _, bucket := range processedBuckets {
			processedCounts[bucket.Period.UTC().Format("2006-01-02")] = bucket.Count
		}

		processingTrend := make([]gin.H, 0, 30)
		for day := 0; day < 30; day++ {
			point := windowStart.AddDate(0, 0, day)
			processingTrend = append(processingTrend, gin.H{
				"period":    point.Format(time.RFC3339),
				"processed": processedCounts[point.Format("2006-01-02")],
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"statistics":       stats,
			"most_referenced":  mostReferenced,
			"processing_trend": processingTrend,
		})
	}
}

// ClearCache drops cached assets and renderings.
func ClearCache(cacheService *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cacheService.Enabled() {
			c.JSON(http.StatusOK, gin.H{"message": "cache disabled"})
			return
		}

		if err := cacheService.InvalidateAssets(); err != nil {
			logger.Error(err, "Failed to clear asset cache", nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache"})
			return
		}
		if err := cacheService.InvalidateRenderedContents(); err != nil {
			logger.Error(err, "Failed to clear render cache", nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "cache cleared"})
	}
}
