package export

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Records holds typed rows; Columns fixes the key order of every encoded object.
type Records struct {
	Columns []string
	Rows    []map[string]interface{}
}

// JSONExporter renders Records as a JSON array of objects.
type JSONExporter struct{}

// NewJSONExporter builds a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *JSONExporter) ContentType() string {
	return "application/json"
}

// Render encodes every row with keys in column order.
func (e *JSONExporter) Render(data Records) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("json export requires at least one column")
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('[')
	for i, row := range data.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, column := range data.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(column)
			if err != nil {
				return nil, fmt.Errorf("encode json key %s: %w", column, err)
			}
			value, err := json.Marshal(row[column])
			if err != nil {
				return nil, fmt.Errorf("encode json value %s: %w", column, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
