package db

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// CompressedPayload represents the form fields of a submission, stored as brotli compressed JSON.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type CompressedPayload map[string]any

// Scan implements the sql.Scanner interface, allowing CompressedPayload to be read from the database.
func (p *CompressedPayload) Scan(value interface{}) error {
	if value == nil {
		*p = make(CompressedPayload)
		return nil
	}

	raw, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type %T", value)
	}

	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return fmt.Errorf("decompressing payload: %w", err)
	}

	m := make(CompressedPayload)
	if len(decoded) > 0 {
		if err := json.Unmarshal(decoded, &m); err != nil {
			return fmt.Errorf("unmarshalling payload: %w", err)
		}
	}
	*p = m
	return nil
}

// Value implements the driver.Valuer interface, allowing CompressedPayload to be written to the database.
func (p CompressedPayload) Value() (driver.Value, error) {
	encoded := []byte("{}")
	if len(p) > 0 {
		var err error
		encoded, err = json.Marshal(map[string]any(p))
		if err != nil {
			return nil, fmt.Errorf("marshalling payload: %w", err)
		}
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flushing compressed payload: %w", err)
	}
	return buf.Bytes(), nil
}
