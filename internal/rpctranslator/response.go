package rpctranslator

import (
	"encoding/json"

	"github.com/aurcache/aurcache/internal/recipe"
)

// InfoResponse is returned for every search and for every info/multiinfo
// query with at least one arg[], even when no package resolves. Its type
// is always "multiinfo", regardless of the inbound query's declared type.
type InfoResponse struct {
	ResultCount int              `json:"resultcount"`
	Results     []*recipe.Record `json:"results"`
	Type        string           `json:"type"`
	Version     int              `json:"version"`
}

// EmptyResponse is returned for argument-less or unrecognised queries.
type EmptyResponse struct {
	ResultCount int    `json:"resultcount"`
	Results     []any  `json:"results"`
	Type        string `json:"type"`
	Version     int    `json:"version"`
}

// ErrorResponse is returned when the translation pipeline fails.
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Version int    `json:"version"`
}

func newInfoResponse(results []*recipe.Record, version int) *InfoResponse {
	return &InfoResponse{ResultCount: len(results), Results: results, Type: "multiinfo", Version: version}
}

func newEmptyResponse(queryType string, version int) *EmptyResponse {
	if queryType == "" {
		queryType = "unknown"
	}
	return &EmptyResponse{ResultCount: 0, Results: []any{}, Type: queryType, Version: version}
}

func newErrorResponse() *ErrorResponse {
	return &ErrorResponse{Error: "Internal server error", Type: "error", Version: 5}
}

func marshalIndented(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
