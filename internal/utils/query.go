package utils

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ms-fest/internal/apperr"
)

// QueryInt reads a non-negative integer query parameter, falling back to def
// when absent.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// AttachmentName builds a Content-Disposition value for a download.
func AttachmentName(prefix, id, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.%s", prefix, id, ext))
}
