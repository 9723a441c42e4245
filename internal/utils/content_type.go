package utils

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".jpg":     "image/jpeg",
	".jpeg":    "image/jpeg",
	".png":     "image/png",
	".gif":     "image/gif",
	".svg":     "image/svg+xml",
	".txt":     "text/plain",
	".md":      "text/markdown",
	".csv":     "text/csv",
	".json":    "application/json",
	".xml":     "application/xml",
	".html":    "text/html",
	".pdf":     "application/pdf",
	".parquet": "application/vnd.apache.parquet",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":     "application/zip",
	".tar":     "application/x-tar",
	".gz":      "application/gzip",
}

// ContentTypeFromExt guesses a MIME type from the file extension.
func ContentTypeFromExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
