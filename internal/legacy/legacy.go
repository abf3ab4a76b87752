// Package legacy decodes the pre-normalization coordinateFields blobs.
//
// Templates used to store their fields as a freeform JSON array of pixel
// positioned descriptors. Each element is decoded into one variant of Element
// so callers switch on the concrete type instead of probing properties.
package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"docflow/internal/geometry"
)

var (
	// ErrParseFailure 原文不是合法 JSON，或某个元素无法解码。
	ErrParseFailure = errors.New("legacy coordinate fields parse failure")
	// ErrNotArray 原文是合法 JSON 但不是数组，迁移时按跳过处理。
	ErrNotArray = errors.New("legacy coordinate fields are not a JSON array")
)

// 缺省像素尺寸，与旧编辑器新建字段时的默认值一致。
const (
	DefaultPixelWidth  = 100.0
	DefaultPixelHeight = 30.0
)

// Kind 是旧数据中的 type 字段。
type Kind string

const (
	KindText      Kind = "text"
	KindDate      Kind = "date"
	KindTable     Kind = "table"
	KindSignature Kind = "signature"
)

// Placement 是所有变体共有的属性，坐标仍是像素值。
type Placement struct {
	// Index 是元素在源数组中的下标（过滤前）。
	Index    int
	ID       string
	HasID    bool
	Label    string
	HasLabel bool
	Required bool
	Page     int
	X        float64
	Y        float64
	Width    float64
	Height   float64
}

// Key 返回去除首尾空白的 id，缺失或为空白时为 field_<index>。
func (p Placement) Key() string {
	if id := strings.TrimSpace(p.ID); p.HasID && id != "" {
		return id
	}
	return fmt.Sprintf("field_%d", p.Index)
}

// DisplayLabel 返回 label，缺失时为 Field <index+1>。
func (p Placement) DisplayLabel() string {
	if p.HasLabel {
		return p.Label
	}
	return fmt.Sprintf("Field %d", p.Index+1)
}

// PixelRect 返回像素矩形。
func (p Placement) PixelRect() geometry.Rect {
	return geometry.Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// Element 是旧字段描述的封闭变体集合：TextField、DateField、TableField、SignatureField。
type Element interface {
	Common() Placement
	Kind() Kind
	isElement()
}

type TextField struct{ Placement }

type DateField struct{ Placement }

// TableField 携带规范化模型无法表示的单元格数据。
type TableField struct {
	Placement
	TableData json.RawMessage
}

type SignatureField struct{ Placement }

func (f TextField) Common() Placement      { return f.Placement }
func (f DateField) Common() Placement      { return f.Placement }
func (f TableField) Common() Placement     { return f.Placement }
func (f SignatureField) Common() Placement { return f.Placement }

func (TextField) Kind() Kind      { return KindText }
func (DateField) Kind() Kind      { return KindDate }
func (TableField) Kind() Kind     { return KindTable }
func (SignatureField) Kind() Kind { return KindSignature }

func (TextField) isElement()      {}
func (DateField) isElement()      {}
func (TableField) isElement()     {}
func (SignatureField) isElement() {}

type rawElement struct {
	ID        json.RawMessage `json:"id"`
	Label     json.RawMessage `json:"label"`
	Required  json.RawMessage `json:"required"`
	Page      json.RawMessage `json:"page"`
	X         json.RawMessage `json:"x"`
	Y         json.RawMessage `json:"y"`
	Width     json.RawMessage `json:"width"`
	Height    json.RawMessage `json:"height"`
	Type      json.RawMessage `json:"type"`
	TableData json.RawMessage `json:"tableData"`
	Value     json.RawMessage `json:"value"`
}

// IsEmpty 判断原文是否为空（nil、空白或 JSON null）。
func IsEmpty(blob []byte) bool {
	trimmed := bytes.TrimSpace(blob)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseTemplateFields 解码模板的 coordinateFields 数组。
func ParseTemplateFields(blob []byte) ([]Element, error) {
	items, err := splitArray(blob)
	if err != nil {
		return nil, err
	}

	out := make([]Element, 0, len(items))
	for i, item := range items {
		raw, err := decodeObject(item, i)
		if err != nil {
			return nil, err
		}
		el, err := raw.element(i)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func splitArray(blob []byte) ([]json.RawMessage, error) {
	if IsEmpty(blob) {
		return nil, nil
	}
	if !json.Valid(blob) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrParseFailure)
	}
	if bytes.TrimSpace(blob)[0] != '[' {
		return nil, ErrNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(blob, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return items, nil
}

func decodeObject(item json.RawMessage, index int) (rawElement, error) {
	var raw rawElement
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, fmt.Errorf("%w: element %d is not an object", ErrParseFailure, index)
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return raw, fmt.Errorf("%w: element %d: %v", ErrParseFailure, index, err)
	}
	return raw, nil
}

func (r rawElement) element(index int) (Element, error) {
	p := Placement{Index: index, Page: 1, Width: DefaultPixelWidth, Height: DefaultPixelHeight}

	p.ID, p.HasID = scalarText(r.ID)
	p.Label, p.HasLabel = scalarText(r.Label)
	p.Required = scalarBool(r.Required)

	if page, ok, err := scalarNumber(r.Page); err != nil {
		return nil, fmt.Errorf("%w: element %d page: %v", ErrParseFailure, index, err)
	} else if ok {
		p.Page = int(page)
	}

	for _, c := range []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"x", r.X, &p.X},
		{"y", r.Y, &p.Y},
		{"width", r.Width, &p.Width},
		{"height", r.Height, &p.Height},
	} {
		v, ok, err := scalarNumber(c.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d %s: %v", ErrParseFailure, index, c.name, err)
		}
		if ok {
			*c.dst = v
		}
	}

	kind, _ := scalarText(r.Type)
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindTable:
		return TableField{Placement: p, TableData: nullToNil(r.TableData)}, nil
	case KindDate:
		return DateField{Placement: p}, nil
	case KindSignature:
		return SignatureField{Placement: p}, nil
	default:
		return TextField{Placement: p}, nil
	}
}

// scalarText 把字符串、数字、布尔值转为文本；缺失或 null 返回 false。
func scalarText(raw json.RawMessage) (string, bool) {
	raw = nullToNil(raw)
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(bytes.TrimSpace(raw)), true
}

func scalarBool(raw json.RawMessage) bool {
	raw = nullToNil(raw)
	if raw == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, _ := strconv.ParseBool(strings.TrimSpace(s))
		return v
	}
	return false
}

// scalarNumber 接受数字或数字字符串。
func scalarNumber(raw json.RawMessage) (float64, bool, error) {
	raw = nullToNil(raw)
	if raw == nil {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, fmt.Errorf("not a number: %s", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return f, true, nil
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}
