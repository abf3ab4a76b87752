package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docflow/internal/database"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/service"
)

// FieldHandler 负责模板字段的 API。
type FieldHandler struct {
	svc *service.FieldService
}

func NewFieldHandler(svc *service.FieldService) *FieldHandler {
	return &FieldHandler{svc: svc}
}

type createFieldRequest struct {
	FieldKey string   `json:"fieldKey" binding:"required"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Page     *int     `json:"page"`
	X        *float64 `json:"x" binding:"required"`
	Y        *float64 `json:"y" binding:"required"`
	Width    *float64 `json:"width" binding:"required"`
	Height   *float64 `json:"height" binding:"required"`
}

type updateFieldRequest struct {
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	X        *float64 `json:"x" binding:"required"`
	Y        *float64 `json:"y" binding:"required"`
	Width    *float64 `json:"width" binding:"required"`
	Height   *float64 `json:"height" binding:"required"`
	// Version 为 0 时不做并发检查。
	Version int `json:"version"`
}

type fieldResponse struct {
	ID         uint      `json:"id"`
	TemplateID uint      `json:"templateId"`
	FieldKey   string    `json:"fieldKey"`
	Label      string    `json:"label"`
	Required   bool      `json:"required"`
	Page       int       `json:"page"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toFieldResponse(f database.TemplateField) fieldResponse {
	return fieldResponse{
		ID:         f.ID,
		TemplateID: f.TemplateID,
		FieldKey:   f.FieldKey,
		Label:      f.Label,
		Required:   f.Required,
		Page:       f.Page,
		X:          f.X,
		Y:          f.Y,
		Width:      f.Width,
		Height:     f.Height,
		Version:    f.Version,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

func toFieldList(list []database.TemplateField) []fieldResponse {
	out := make([]fieldResponse, 0, len(list))
	for _, f := range list {
		out = append(out, toFieldResponse(f))
	}
	return out
}

// POST /v1/templates/:templateId/fields
func (h *FieldHandler) CreateField(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}

	var req createFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	page := 1
	if req.Page != nil {
		page = *req.Page
	}

	field, err := h.svc.CreateField(c.Request.Context(), fields.NewField{
		TemplateID: templateID,
		FieldKey:   req.FieldKey,
		Label:      req.Label,
		Required:   req.Required,
		Page:       page,
		Rect:       geometry.Rect{X: *req.X, Y: *req.Y, Width: *req.Width, Height: *req.Height},
	})
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toFieldResponse(*field))
}

// GET /v1/templates/:templateId/fields
func (h *FieldHandler) ListFields(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}
	list, err := h.svc.ListFields(c.Request.Context(), templateID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFieldList(list))
}

// GET /v1/templates/:templateId/fields/required
func (h *FieldHandler) ListRequiredFields(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}
	list, err := h.svc.ListRequiredFields(c.Request.Context(), templateID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFieldList(list))
}

// GET /v1/templates/:templateId/fields/by-key/:fieldKey
func (h *FieldHandler) GetFieldByKey(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}
	field, err := h.svc.GetFieldByKey(c.Request.Context(), templateID, c.Param("fieldKey"))
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFieldResponse(*field))
}

// DELETE /v1/templates/:templateId/fields
// 重置模板：删除全部字段及其字段值。
func (h *FieldHandler) DeleteAllFields(c *gin.Context) {
	templateID, ok := uintParam(c, "templateId")
	if !ok {
		return
	}
	n, err := h.svc.DeleteAllFields(c.Request.Context(), templateID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// GET /v1/fields/:fieldId
func (h *FieldHandler) GetField(c *gin.Context) {
	fieldID, ok := uintParam(c, "fieldId")
	if !ok {
		return
	}
	field, err := h.svc.GetField(c.Request.Context(), fieldID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFieldResponse(*field))
}

// PUT /v1/fields/:fieldId
// fieldKey 与 page 创建后不可修改。
func (h *FieldHandler) UpdateField(c *gin.Context) {
	fieldID, ok := uintParam(c, "fieldId")
	if !ok {
		return
	}

	var req updateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	field, err := h.svc.UpdateField(c.Request.Context(), fieldID, fields.FieldUpdate{
		Label:           req.Label,
		Required:        req.Required,
		Rect:            geometry.Rect{X: *req.X, Y: *req.Y, Width: *req.Width, Height: *req.Height},
		ExpectedVersion: req.Version,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFieldResponse(*field))
}

// DELETE /v1/fields/:fieldId
func (h *FieldHandler) DeleteField(c *gin.Context) {
	fieldID, ok := uintParam(c, "fieldId")
	if !ok {
		return
	}
	if err := h.svc.DeleteField(c.Request.Context(), fieldID); err != nil {
		Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
