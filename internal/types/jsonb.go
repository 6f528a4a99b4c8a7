package types

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
var (
	_ sql.Scanner   = (*Object)(nil)
	_ driver.Valuer = Object(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
// Numbers are decoded as json.Number so integer ids and counters keep their textual form.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (o *Object) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	return scanJSONB(o, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (o Object) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return valueJSONB(map[string]any(o))
}
