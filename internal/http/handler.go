package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/config"
	"github.com/nurpe/contracts-service/internal/http/middleware"
	"github.com/nurpe/contracts-service/internal/model"
	"github.com/nurpe/contracts-service/internal/service"
)

const (
	attachmentField = "attachment"
	// multipartOverhead is the allowance for form fields and boundaries on
	// top of the attachment size limit.
	multipartOverhead = 1 << 20
)

type Handler struct {
	contracts      *service.ContractService
	publicPrefix   string
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewHandler(contracts *service.ContractService, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		contracts:      contracts,
		publicPrefix:   cfg.Storage.PublicPrefix,
		maxUploadBytes: cfg.HTTP.MaxUploadBytes,
		log:            log,
	}
}

func (h *Handler) Register(router *gin.Engine) {
	router.GET("/healthz", h.health)
	router.GET(h.publicPrefix+"/*name", h.downloadAttachment)

	api := router.Group("/api")
	api.GET("/contracts", h.listContracts)
	api.GET("/contracts/:id", h.getContract)
	api.POST("/contracts", h.createContract)
	api.PUT("/contracts/:id", h.updateContract)
	api.DELETE("/contracts/:id", h.deleteContract)
	api.GET("/export/contracts", h.exportContracts)
	api.GET("/export/contracts/pdf", h.exportContractsPDF)
}

// contractRequest accepts both multipart forms and JSON bodies. Numbers may be
// sent as JSON numbers or strings.
type contractRequest struct {
	ClientName      string      `form:"clientName" json:"clientName"`
	StartDate       string      `form:"startDate" json:"startDate"`
	EndDate         string      `form:"endDate" json:"endDate"`
	ContractValue   json.Number `form:"contractValue" json:"contractValue"`
	DeliveryManager string      `form:"deliveryManager" json:"deliveryManager"`
}

func (r contractRequest) fields() (model.ContractFields, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return model.ContractFields{}, fmt.Errorf("%w: invalid startDate", service.ErrInvalidInput)
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return model.ContractFields{}, fmt.Errorf("%w: invalid endDate", service.ErrInvalidInput)
	}
	value, err := parseAmount(r.ContractValue.String())
	if err != nil {
		return model.ContractFields{}, err
	}
	return model.ContractFields{
		ClientName:      r.ClientName,
		StartDate:       start,
		EndDate:         end,
		ContractValue:   value,
		DeliveryManager: r.DeliveryManager,
	}, nil
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listContracts(c *gin.Context) {
	contracts, err := h.contracts.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contracts)
}

func (h *Handler) getContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) createContract(c *gin.Context) {
	fields, upload, cleanup, err := h.bindContract(c)
	defer cleanup()
	if err != nil {
		h.handleError(c, err)
		return
	}

	contract, err := h.contracts.Create(c.Request.Context(), fields, upload)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (h *Handler) updateContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}

	fields, upload, cleanup, err := h.bindContract(c)
	defer cleanup()
	if err != nil {
		h.handleError(c, err)
		return
	}

	contract, err := h.contracts.Update(c.Request.Context(), id, fields, upload)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) deleteContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	if err := h.contracts.Delete(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

func (h *Handler) downloadAttachment(c *gin.Context) {
	ref := h.publicPrefix + c.Param("name")
	rc, obj, err := h.contracts.OpenAttachment(c.Request.Context(), ref)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer rc.Close()

	c.Header("X-Content-Type-Options", "nosniff")
	size := obj.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, obj.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", obj.Name),
	})
}

func (h *Handler) exportContracts(c *gin.Context) {
	result, err := h.contracts.ExportXLSX(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.Content)
}

func (h *Handler) exportContractsPDF(c *gin.Context) {
	result, err := h.contracts.ExportPDF(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

// bindContract decodes the request body into typed fields plus the optional
// attachment. The returned cleanup closes the uploaded file and must always be
// called.
func (h *Handler) bindContract(c *gin.Context) (model.ContractFields, *model.Upload, func(), error) {
	cleanup := func() {}
	isMultipart := c.ContentType() == binding.MIMEMultipartPOSTForm
	if isMultipart && h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	var req contractRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.ContractFields{}, nil, cleanup, fmt.Errorf("%w: request body exceeds %d bytes", service.ErrInvalidInput, tooLarge.Limit)
		}
		return model.ContractFields{}, nil, cleanup, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}

	fields, err := req.fields()
	if err != nil {
		return model.ContractFields{}, nil, cleanup, err
	}
	if !isMultipart {
		return fields, nil, cleanup, nil
	}

	header, err := c.FormFile(attachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return fields, nil, cleanup, nil
	}
	if err != nil {
		return model.ContractFields{}, nil, cleanup, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	upload, cleanup, err := h.openUpload(header)
	if err != nil {
		return model.ContractFields{}, nil, cleanup, err
	}
	return fields, upload, cleanup, nil
}

func (h *Handler) openUpload(header *multipart.FileHeader) (*model.Upload, func(), error) {
	noop := func() {}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return nil, noop, fmt.Errorf("%w: attachment exceeds %d bytes", service.ErrInvalidInput, h.maxUploadBytes)
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("%w: read attachment: %v", service.ErrInvalidInput, err)
	}
	return &model.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	}, func() { _ = file.Close() }, nil
}

// contractID writes a 404 for ids that cannot name a contract.
func (h *Handler) contractID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, http.StatusNotFound, "contract not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("record store unavailable")
		respondError(c, http.StatusServiceUnavailable, "record store unavailable")
	case errors.Is(err, service.ErrStorage):
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("attachment storage failed")
		respondError(c, http.StatusInternalServerError, "attachment storage failed")
	default:
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("request failed")
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg, "message": msg})
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: contractValue is required", service.ErrInvalidInput)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: contractValue must be a number", service.ErrInvalidInput)
	}
	return value, nil
}
