package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value 是文档 data.coordinateFields 中的一个旧字段值。
type Value struct {
	Element Element
	// Text 为 nil 表示元素没有 value 或 value 为 null。
	Text *string
}

// ParseDocumentValues 解码文档 data 中的 coordinateFields。
// coordinateFields 可能直接是数组，也可能是包含数组的 JSON 字符串。
func ParseDocumentValues(data []byte) ([]Value, error) {
	if IsEmpty(data) {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: malformed document data", ErrParseFailure)
	}

	var envelope struct {
		CoordinateFields json.RawMessage `json:"coordinateFields"`
	}
	if bytes.TrimSpace(data)[0] != '{' {
		return nil, ErrNotArray
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	blob := nullToNil(envelope.CoordinateFields)
	if blob == nil {
		return nil, nil
	}
	if blob[0] == '"' {
		var inner string
		if err := json.Unmarshal(blob, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
		blob = []byte(inner)
	}

	items, err := splitArray(blob)
	if err != nil {
		return nil, err
	}

	out := make([]Value, 0, len(items))
	for i, item := range items {
		raw, err := decodeObject(item, i)
		if err != nil {
			return nil, err
		}
		el, err := raw.element(i)
		if err != nil {
			return nil, err
		}
		v := Value{Element: el}
		if text, ok := scalarText(raw.Value); ok {
			v.Text = &text
		}
		out = append(out, v)
	}
	return out, nil
}
