package ui

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/client"
	"github.com/nurpe/contracts-service/internal/model"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

const indexTemplate = "index.tmpl"

type WebHandler struct {
	controller    *Controller
	attachmentURL func(ref string) string
	log           zerolog.Logger
}

func NewWebHandler(controller *Controller, attachmentURL func(ref string) string, log zerolog.Logger) *WebHandler {
	return &WebHandler{
		controller:    controller,
		attachmentURL: attachmentURL,
		log:           log,
	}
}

func (h *WebHandler) Register(router *gin.Engine) {
	router.GET("/", h.index)
	router.POST("/contracts", h.submit)
	router.POST("/contracts/:id/delete", h.delete)
}

func NewRouter(handler *WebHandler, log zerolog.Logger) (*gin.Engine, error) {
	tmpl, err := template.New("").Funcs(templateFuncs(handler.attachmentURL)).ParseFS(templateFiles, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("panic recovered")
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	router.SetHTMLTemplate(tmpl)
	handler.Register(router)
	return router, nil
}

func (h *WebHandler) index(c *gin.Context) {
	state := NewState()
	if err := h.controller.Load(c.Request.Context(), state); err != nil {
		h.log.Warn().Err(err).Msg("load contracts failed")
		h.render(c, http.StatusBadGateway, state)
		return
	}

	if raw := c.Query("edit"); raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			err = h.controller.Edit(state, id)
		} else {
			state.Error = "Contract not found"
		}
		if err != nil {
			h.render(c, http.StatusNotFound, state)
			return
		}
	}

	h.render(c, http.StatusOK, state)
}

func (h *WebHandler) submit(c *gin.Context) {
	state := NewState()
	ctx := c.Request.Context()

	// Submitted values are applied on top of the form as it was before the
	// submit: empty when creating, the listed contract when editing.
	if raw := c.PostForm("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(c, state, http.StatusNotFound, "Contract not found")
			return
		}
		if err := h.controller.Load(ctx, state); err != nil {
			h.log.Warn().Err(err).Msg("load contracts failed")
			h.render(c, http.StatusBadGateway, state)
			return
		}
		if err := h.controller.Edit(state, id); err != nil {
			h.render(c, http.StatusNotFound, state)
			return
		}
	}

	dropped := false
	for _, field := range FieldOrder {
		if !state.Form.Set(field, c.PostForm(field)) {
			dropped = true
		}
	}
	if dropped {
		h.reload(c, state, http.StatusOK)
		return
	}

	upload, closeUpload, err := formUpload(c)
	if err != nil {
		h.fail(c, state, http.StatusBadRequest, err.Error())
		return
	}
	defer closeUpload()

	if err := h.controller.Submit(ctx, state, upload); err != nil {
		h.log.Warn().Err(err).Str("mode", string(state.Mode)).Msg("submit contract failed")
		h.reload(c, state, statusFor(err))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *WebHandler) delete(c *gin.Context) {
	state := NewState()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, state, http.StatusNotFound, "Contract not found")
		return
	}

	if err := h.controller.Delete(c.Request.Context(), state, id); err != nil {
		h.log.Warn().Err(err).Str("contract_id", id.String()).Msg("delete contract failed")
		h.reload(c, state, statusFor(err))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// fail re-renders the page with msg while keeping the submitted form.
func (h *WebHandler) fail(c *gin.Context, state *State, status int, msg string) {
	state.Error = msg
	h.reload(c, state, status)
}

// reload refreshes the list without touching the form or the error.
func (h *WebHandler) reload(c *gin.Context, state *State, status int) {
	msg := state.Error
	if err := h.controller.Load(c.Request.Context(), state); err != nil {
		h.log.Warn().Err(err).Msg("reload contracts failed")
	}
	if msg != "" {
		state.Error = msg
	}
	h.render(c, status, state)
}

func (h *WebHandler) render(c *gin.Context, status int, state *State) {
	c.HTML(status, indexTemplate, state)
}

func formUpload(c *gin.Context) (*model.Upload, func(), error) {
	noop := func() {}
	header, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, fmt.Errorf("could not read attachment: %w", err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("could not read attachment: %w", err)
	}
	return &model.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	}, func() { _ = file.Close() }, nil
}

// statusFor maps a failed action to the page status: client errors pass
// through, everything else means the API could not serve the request.
func statusFor(err error) int {
	var formErr FormError
	if errors.As(err, &formErr) {
		return http.StatusBadRequest
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func templateFuncs(attachmentURL func(string) string) template.FuncMap {
	return template.FuncMap{
		"attachmentURL": attachmentURL,
		"displayDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("Jan 2, 2006")
		},
		"money": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},
	}
}
