// internal/controller/request.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
)

// decodeOptional decodes a JSON body when one is present. An empty body leaves dst untouched.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func tenantOr(r *http.Request, fromBody, fallback string) string {
	if fromBody != "" {
		return fromBody
	}
	if q := r.URL.Query().Get("tenant_id"); q != "" {
		return q
	}
	return fallback
}
