package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/importer"
	"github.com/sjperalta/crm-api/internal/middleware"
	"github.com/sjperalta/crm-api/internal/services"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/sjperalta/crm-api/pkg/logger"
)

type ImportHandler struct {
	importService  *services.ImportService
	timeout        time.Duration
	maxUploadBytes int64
}

func NewImportHandler(importService *services.ImportService, timeout time.Duration, maxUploadMB int64) *ImportHandler {
	return &ImportHandler{
		importService:  importService,
		timeout:        timeout,
		maxUploadBytes: maxUploadMB << 20,
	}
}

// @Summary Upload Clients CSV
// @Description Inserts new clients from a CSV file. Rows whose trading code already exists are skipped and offered as a one-time duplicate download. Files above the sync threshold are processed in background (202).
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file with a Trading Code column"
// @Success 201 {object} map[string]interface{}
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /clients/upload [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	h.handle(c, importer.ModeInsert)
}

// @Summary Update Clients from CSV
// @Description Upserts clients by trading code. Only the columns present in the file are written; absent columns keep their stored values.
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file with a Trading Code column"
// @Success 200 {object} map[string]interface{}
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 408 {object} map[string]string
// @Security BearerAuth
// @Router /clients/update-csv [post]
func (h *ImportHandler) UpdateCSV(c *gin.Context) {
	h.handle(c, importer.ModeUpsert)
}

func (h *ImportHandler) handle(c *gin.Context, mode importer.Mode) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please upload a CSV file"})
		return
	}
	if !storage.IsValidContentType(fh.Header.Get("Content-Type")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only CSV files are allowed"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
		return
	}
	path, err := h.importService.Stage(src, fh.Filename)
	src.Close()
	if err != nil {
		logger.Error("Failed to stage upload", slog.String("file", fh.Filename), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	done := h.importService.Start(path, importer.Request{
		Mode:       mode,
		UploadedBy: middleware.GetUploader(c),
	})

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	// Whichever comes first answers the request. A late result is still
	// persisted and logged by the pipeline.
	select {
	case res := <-done:
		h.respond(c, res)
	case <-timer.C:
		logger.Warn("Import exceeded request timeout, continuing in background",
			slog.String("mode", string(mode)),
			slog.String("file", fh.Filename),
			slog.Duration("timeout", h.timeout))
		if mode == importer.ModeUpsert {
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":  "Request timeout. Please try again.",
				"status": "processing",
			})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Processing is taking longer than expected. Data is being saved in background. Please refresh after a minute.",
			"status":  "processing",
		})
	}
}

func (h *ImportHandler) respond(c *gin.Context, res services.ImportResult) {
	switch {
	case res.Err == nil:
		status, body := res.Outcome.Response()
		c.JSON(status, body)
	case importer.IsRejection(res.Err):
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Err.Error()})
	case errors.Is(res.Err, importer.ErrMalformedCSV):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Error parsing CSV file. Please check file format.",
			"details": res.Err.Error(),
		})
	default:
		logger.Error("Import failed", slog.String("error", res.Err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
	}
}

// @Summary Download Duplicate Rows
// @Description Serves the CSV of rows skipped by an insert import. Each file can be downloaded once.
// @Tags Import
// @Produce text/csv
// @Param filename path string true "Duplicate file name"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /clients/duplicates/{filename} [get]
func (h *ImportHandler) DownloadDuplicates(c *gin.Context) {
	name := c.Param("filename")
	f, err := h.importService.OpenDuplicates(name)
	if err != nil {
		respondError(c, err, "File not found or already downloaded")
		return
	}
	defer h.importService.ConsumeDuplicates(name)
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(c, err, "File not found or already downloaded")
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "text/csv", f, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}
