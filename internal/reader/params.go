package reader

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"domainreader/internal/reader/model"
	"domainreader/internal/reader/visibility"
)

// Reserved request parameter names.
const (
	ParamBranch           = "branch"
	ParamPage             = "page"
	ParamPageSize         = "page_size"
	ParamReproductionID   = "reproduction_id"
	ParamReproductionDate = "reproduction_date"
	ParamID               = "id"
)

// CleanParams drops empty keys and falsy values: nil, "", false, numeric
// zero and empty collections. The input is not modified.
func CleanParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "" || isFalsy(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return t == "" || (err == nil && f == 0)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// branchOf returns the requested branch, master when absent.
func branchOf(params map[string]any) string {
	if b, ok := params[ParamBranch].(string); ok && strings.TrimSpace(b) != "" {
		return b
	}
	return visibility.DefaultBranch
}

// windowOf paginates only when page and page_size are both positive
// integers. page is 1-based and the size is clamped to maxSize.
func windowOf(params map[string]any, maxSize int) *model.Window {
	page, ok := positiveInt(params[ParamPage])
	if !ok {
		return nil
	}
	size, ok := positiveInt(params[ParamPageSize])
	if !ok {
		return nil
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return &model.Window{Limit: size, Offset: (page - 1) * size}
}

func positiveInt(v any) (int, bool) {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt32 {
			return 0, false
		}
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
