package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"domainreader/internal/reader"
)

// Request headers that override body or query parameters.
const (
	HeaderBranch           = "Branch"
	HeaderReproductionID   = "ReproductionId"
	HeaderReproductionDate = "ReproductionDate"
)

const maxBodyBytes = 1 << 20

// paramsFromQuery takes the first value of each query parameter.
func paramsFromQuery(r *http.Request) map[string]any {
	q := r.URL.Query()
	params := make(map[string]any, len(q))
	for k := range q {
		params[k] = q.Get(k)
	}
	return params
}

// paramsFromBody decodes a JSON object. An empty body is no parameters.
func paramsFromBody(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	for k, v := range params {
		params[k] = normalizeNumber(v)
	}
	return params, nil
}

// normalizeNumber turns json.Number into int64 when integral, else float64.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// applyHeaders lets request headers override branch and reproduction params.
// The reproduction date header only counts alongside a reproduction id.
func applyHeaders(r *http.Request, params map[string]any) {
	if branch := r.Header.Get(HeaderBranch); branch != "" {
		params[reader.ParamBranch] = branch
	}
	id := r.Header.Get(HeaderReproductionID)
	if id == "" {
		return
	}
	params[reader.ParamReproductionID] = id
	if date := r.Header.Get(HeaderReproductionDate); date != "" {
		params[reader.ParamReproductionDate] = date
	}
}
