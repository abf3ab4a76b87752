package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"docflow/internal/fields"
	"docflow/internal/service"
)

// ValueHandler 负责文档字段值与完成度的 API。
type ValueHandler struct {
	svc *service.FieldService
}

func NewValueHandler(svc *service.FieldService) *ValueHandler {
	return &ValueHandler{svc: svc}
}

type upsertValueRequest struct {
	TemplateFieldID uint `json:"templateFieldId" binding:"required"`
	// Value 为 null 表示清空。
	Value *string        `json:"value"`
	Raw   datatypes.JSON `json:"raw"`
}

type valueResponse struct {
	ID              uint           `json:"id"`
	DocumentID      uint           `json:"documentId"`
	TemplateFieldID uint           `json:"templateFieldId"`
	FieldKey        string         `json:"fieldKey"`
	Label           string         `json:"label"`
	Value           *string        `json:"value"`
	Raw             datatypes.JSON `json:"raw,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func toValueResponse(v fields.FieldValue) valueResponse {
	return valueResponse{
		ID:              v.Value.ID,
		DocumentID:      v.Value.DocumentID,
		TemplateFieldID: v.Value.TemplateFieldID,
		FieldKey:        v.Field.FieldKey,
		Label:           v.Field.Label,
		Value:           v.Value.Value,
		Raw:             v.Value.ValueRaw,
		UpdatedAt:       v.Value.UpdatedAt,
	}
}

func bindValue(c *gin.Context) (upsertValueRequest, bool) {
	var req upsertValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return req, false
	}
	return req, true
}

// POST /v1/documents/:documentId/field-values
func (h *ValueHandler) UpsertValue(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	req, ok := bindValue(c)
	if !ok {
		return
	}

	value, err := h.svc.UpsertValue(c.Request.Context(), documentID, req.TemplateFieldID, fields.ValueInput{
		Value: req.Value,
		Raw:   req.Raw,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toValueResponse(*value))
}

// POST /v1/documents/:documentId/field-values/draft
// 自动保存：校验通过后立即返回 202，值在静默窗口结束后写入。
func (h *ValueHandler) SaveDraft(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	req, ok := bindValue(c)
	if !ok {
		return
	}

	if err := h.svc.SaveDraft(c.Request.Context(), documentID, req.TemplateFieldID, fields.ValueInput{
		Value: req.Value,
		Raw:   req.Raw,
	}); err != nil {
		if errors.Is(err, service.ErrQueueClosed) {
			Error(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// GET /v1/documents/:documentId/field-values
func (h *ValueHandler) ListValues(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	values, err := h.svc.ListValues(c.Request.Context(), documentID)
	if err != nil {
		Fail(c, err)
		return
	}
	out := make([]valueResponse, 0, len(values))
	for _, v := range values {
		out = append(out, toValueResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

// GET /v1/documents/:documentId/field-values/map
func (h *ValueHandler) ValueMap(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	m, err := h.svc.ValueMap(c.Request.Context(), documentID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GET /v1/documents/:documentId/field-values/:fieldId
func (h *ValueHandler) GetValue(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	fieldID, ok := uintParam(c, "fieldId")
	if !ok {
		return
	}
	value, err := h.svc.GetValue(c.Request.Context(), documentID, fieldID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toValueResponse(*value))
}

// DELETE /v1/documents/:documentId/field-values/:fieldId
func (h *ValueHandler) DeleteValue(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	fieldID, ok := uintParam(c, "fieldId")
	if !ok {
		return
	}
	if err := h.svc.DeleteValue(c.Request.Context(), documentID, fieldID); err != nil {
		Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /v1/documents/:documentId/field-values
func (h *ValueHandler) DeleteAllValues(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	n, err := h.svc.DeleteAllValues(c.Request.Context(), documentID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// GET /v1/documents/:documentId/completion
func (h *ValueHandler) Completion(c *gin.Context) {
	documentID, ok := uintParam(c, "documentId")
	if !ok {
		return
	}
	info, err := h.svc.Completion(c.Request.Context(), documentID)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
