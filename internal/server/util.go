package server

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeAbsPath ensures the provided path is absolute and does not contain
// traversal. Empty is allowed and means "use the script's directory".
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(p, sep)
	if trimmed == "" {
		trimmed = p // keep root like "/" on Unix
	}
	return clean == p || clean == trimmed
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
