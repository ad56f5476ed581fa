package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ZacMelendez/passporter/internal/discovery"
	"github.com/ZacMelendez/passporter/internal/importer"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
	"github.com/gin-gonic/gin"
)

// Scheduler is the slice of the batch scheduler the handlers drive.
type Scheduler interface {
	StartPendingBatch(concurrency int) (string, int, error)
	DiscoverOne(id int64) (*model.Entry, error)
}

// Discoverer runs one ad-hoc discovery without touching the store.
type Discoverer interface {
	DiscoverWithFallback(ctx context.Context, rawURL string) *model.DiscoveryResult
}

// Importer moves entries in and out of the store as CSV.
type Importer interface {
	Import(r io.Reader) (*importer.ImportResult, error)
	Export(w io.Writer) error
}

type EntryHandler struct {
	store     persistence.EntryStorage
	scheduler Scheduler
	discovery Discoverer
	importer  Importer
	log       *slog.Logger
}

func NewEntryHandler(store persistence.EntryStorage, sched Scheduler, disc Discoverer,
	imp Importer, log *slog.Logger) *EntryHandler {
	return &EntryHandler{
		store:     store,
		scheduler: sched,
		discovery: disc,
		importer:  imp,
		log:       log,
	}
}

type createEntryRequest struct {
	URL      string `json:"url" binding:"required"`
	Username string `json:"username" binding:"required"`
}

func (h *EntryHandler) Create(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	origin := discovery.NormalizeOrigin(discovery.EnsureScheme(strings.TrimSpace(req.URL)))
	id, err := h.store.Create(&model.Entry{URL: origin, Username: strings.TrimSpace(req.Username)})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": "entry already exists"})
			return
		}
		h.log.Error("failed to create entry.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create entry"})
		return
	}

	entry, err := h.store.GetByID(id)
	if err != nil {
		h.log.Error("failed to load created entry.", slog.Int64("id", id), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *EntryHandler) List(c *gin.Context) {
	var statuses []model.EntryStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, model.EntryStatus(strings.TrimSpace(s)))
		}
	}

	entries, err := h.store.List(statuses)
	if err != nil {
		h.log.Error("failed to list entries.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *EntryHandler) GetByID(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}

	entry, err := h.store.GetByID(id)
	if err != nil {
		if errors.Is(err, persistence.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		h.log.Error("failed to get entry.", slog.Int64("id", id), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *EntryHandler) Delete(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}

	if err = h.store.Delete(id); err != nil {
		if errors.Is(err, persistence.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		h.log.Error("failed to delete entry.", slog.Int64("id", id), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete entry"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ScrapeOne runs the discovery for a single entry synchronously and returns
// the entry in its terminal state.
func (h *EntryHandler) ScrapeOne(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}

	entry, err := h.scheduler.DiscoverOne(id)
	if err != nil {
		if errors.Is(err, persistence.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		h.log.Error("failed to scrape entry.", slog.Int64("id", id), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scrape entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type discoverRequest struct {
	URL string `json:"url" binding:"required"`
}

// Discover runs an ad-hoc discovery for a raw URL without creating an entry.
func (h *EntryHandler) Discover(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result := h.discovery.DiscoverWithFallback(c.Request.Context(), discovery.EnsureScheme(strings.TrimSpace(req.URL)))
	c.JSON(http.StatusOK, result)
}

type scrapeRequest struct {
	Concurrency int `json:"concurrency"`
}

// ScrapeAll queues every pending or errored entry as one batch and returns
// 202 immediately; progress is polled via /scrape/progress.
func (h *EntryHandler) ScrapeAll(c *gin.Context) {
	var req scrapeRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	batchID, queued, err := h.scheduler.StartPendingBatch(req.Concurrency)
	if err != nil {
		h.log.Error("failed to start batch.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start batch"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "queued": queued})
}

func (h *EntryHandler) Progress(c *gin.Context) {
	progress, err := h.store.Progress()
	if err != nil {
		h.log.Error("failed to read progress.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read progress"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *EntryHandler) ImportCSV(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing csv file", "details": err.Error()})
		return
	}
	f, err := file.Open()
	if err != nil {
		h.log.Error("failed to open uploaded file.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read csv file"})
		return
	}
	defer f.Close()

	result, err := h.importer.Import(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "import failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *EntryHandler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.importer.Export(&buf); err != nil {
		h.log.Error("failed to export entries.", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export entries"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="passporter-entries.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func entryID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
