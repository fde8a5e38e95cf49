package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SeriesType discriminates between episodic series and movies
type SeriesType string

const (
	TypeSeries SeriesType = "series"
	TypeMovie  SeriesType = "movie"
)

// StringList is a []string stored as a JSON text column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// Server is one named video source attached to an episode. Option is the
// source site's own numbering of alternate players; nil for catch-all finds.
type Server struct {
	Option    *int    `json:"option"`
	RealVideo *string `json:"real_video"`
}

// ServerList is an ordered []Server stored as a JSON text column.
// Insertion order is preserved.
type ServerList []Server

// Value implements driver.Valuer
func (l ServerList) Value() (driver.Value, error) {
	if l == nil {
		l = ServerList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *ServerList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into ServerList", value)
	}
}
