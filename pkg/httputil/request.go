package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 500
	// MaxPage keeps the row offset within an int32 at any page size
	MaxPage = math.MaxInt32 / MaxPageSize
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathID extracts a positive int64 path parameter
func ParsePathID(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %s", key, str)
	}
	if val <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return val, nil
}

// ParsePathIDOrError extracts a positive id and writes a 400 on failure
func ParsePathIDOrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathID(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryInt64 extracts and parses an int64 query parameter
func ParseQueryInt64(r *http.Request, key string, defaultVal int64) (int64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString extracts a trimmed string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseQueryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date.
// A missing parameter yields nil.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, str); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", str); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid time for query param %s: %s", key, str)
}

// Paging is the normalized page/page_size pair of a list request
type Paging struct {
	Page     int
	PageSize int
}

// Offset returns the row offset of the page
func (p Paging) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ParsePaging reads page (1-based) and page_size, rejecting out-of-range values
func ParsePaging(r *http.Request) (Paging, error) {
	page, err := ParseQueryInt(r, "page", 1)
	if err != nil {
		return Paging{}, err
	}
	size, err := ParseQueryInt(r, "page_size", DefaultPageSize)
	if err != nil {
		return Paging{}, err
	}
	if page < 1 || page > MaxPage {
		return Paging{}, fmt.Errorf("page must be between 1 and %d", MaxPage)
	}
	if size < 1 || size > MaxPageSize {
		return Paging{}, fmt.Errorf("page_size must be between 1 and %d", MaxPageSize)
	}
	return Paging{Page: page, PageSize: size}, nil
}

// Validator is a function that validates a value and returns an error message if invalid
type Validator func() (bool, string)

// RequireNonEmpty validates that a string field is not blank
func RequireNonEmpty(fieldName, value string) Validator {
	return func() (bool, string) {
		return strings.TrimSpace(value) != "", fmt.Sprintf("%s is required", fieldName)
	}
}

// RequireMaxLength validates a string length
func RequireMaxLength(fieldName, value string, max int) Validator {
	return func() (bool, string) {
		return len(value) <= max, fmt.Sprintf("%s must be at most %d characters", fieldName, max)
	}
}

// ValidateAll runs validators in order and writes the first failure as a 400
func ValidateAll(w http.ResponseWriter, validators ...Validator) bool {
	for _, validator := range validators {
		if valid, errMsg := validator(); !valid {
			WriteBadRequest(w, errMsg)
			return false
		}
	}
	return true
}
