package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"rawwebapi/config"
	"rawwebapi/converter"
	"rawwebapi/task"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ConverterStatus is the resolver outcome shown to clients.
type ConverterStatus struct {
	Available bool              `json:"available"`
	Message   string            `json:"message"`
	Handle    *converter.Handle `json:"handle,omitempty"`
}

// NewConverterStatus summarizes what Resolve returned at startup.
func NewConverterStatus(h *converter.Handle, err error) ConverterStatus {
	return ConverterStatus{
		Available: err == nil && h != nil,
		Message:   converter.Describe(h, err),
		Handle:    h,
	}
}

type Handler struct {
	manager *task.Manager
	cfg     *config.Config
	status  ConverterStatus
}

func NewHandler(m *task.Manager, cfg *config.Config, status ConverterStatus) *Handler {
	return &Handler{
		manager: m,
		cfg:     cfg,
		status:  status,
	}
}

// handleConverterStatus reports whether the converter was found or installed.
func (h *Handler) handleConverterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status)
}

// handleConvert converts the uploaded files synchronously.
func (h *Handler) handleConvert(c *gin.Context) {
	uploads, closeAll, ok := h.readUploads(c)
	if !ok {
		return
	}
	defer closeAll()

	results, err := h.manager.Convert(c.Request.Context(), uploads)
	if err != nil {
		h.abortWithManagerError(c, err)
		return
	}

	converted := 0
	for i := range results {
		if results[i].Succeeded {
			converted++
			results[i].DownloadURL = h.downloadURL(c, results[i].OutputName)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"converted": converted,
		"failed":    len(results) - converted,
	})
}

// handleCreateBatch stages the uploaded files and queues them.
func (h *Handler) handleCreateBatch(c *gin.Context) {
	uploads, closeAll, ok := h.readUploads(c)
	if !ok {
		return
	}
	defer closeAll()

	b, err := h.manager.Submit(uploads)
	if err != nil {
		h.abortWithManagerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batchId": b.ID})
}

func (h *Handler) handleListBatches(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

func (h *Handler) handleGetBatch(c *gin.Context) {
	b, found := h.manager.Get(c.Param("batchId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	// Stored batches are shared snapshots; decorate a copy.
	out := *b
	out.Results = append([]task.Result(nil), b.Results...)
	for i := range out.Results {
		if out.Results[i].Succeeded {
			out.Results[i].DownloadURL = h.downloadURL(c, out.Results[i].OutputName)
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleGetFile serves a converted file as a download.
func (h *Handler) handleGetFile(c *gin.Context) {
	filename := c.Param("filename")
	filePath, err := h.manager.GetFilePath(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(filePath, filename)
}

// readUploads opens every file of the multipart "files" field. On failure it
// has already written the response.
func (h *Handler) readUploads(c *gin.Context) ([]task.Upload, func(), bool) {
	if !h.manager.Available() {
		h.abortWithManagerError(c, task.ErrConverterUnavailable)
		return nil, nil, false
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid upload: %v", err)})
		return nil, nil, false
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please upload at least one .raw file."})
		return nil, nil, false
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	uploads := make([]task.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			log.Errorf("Could not open upload %s: %v", fh.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Could not read %s", fh.Filename)})
			return nil, nil, false
		}
		opened = append(opened, f)
		uploads = append(uploads, task.Upload{Name: fh.Filename, Reader: f})
	}
	return uploads, closeAll, true
}

func (h *Handler) abortWithManagerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrConverterUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "details": h.status.Message})
	case errors.Is(err, task.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrNoUploads):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Conversion failed", "details": err.Error()})
	}
}

// downloadURL builds the absolute link for a converted file.
func (h *Handler) downloadURL(c *gin.Context, filename string) string {
	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return fmt.Sprintf("%s/api/v1/files/%s", baseURL, url.PathEscape(filename))
}
