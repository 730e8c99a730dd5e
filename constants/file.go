package constants

import "strings"

// DocumentKind is the file_type column of plan_jobs.
type DocumentKind string

const (
	DocumentPDF   DocumentKind = "pdf"
	DocumentImage DocumentKind = "image"
)

// MaxUploadMBDefault mirrors the upload limit enforced when jobs are enqueued.
const MaxUploadMBDefault = 50

// AllowedExtensions holds the file extensions accepted for plan uploads.
var AllowedExtensions = map[string]DocumentKind{
	"pdf":  DocumentPDF,
	"png":  DocumentImage,
	"jpg":  DocumentImage,
	"jpeg": DocumentImage,
	"webp": DocumentImage,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForExt maps an extension to a DocumentKind; ok is false for unsupported types.
func KindForExt(ext string) (DocumentKind, bool) {
	k, ok := AllowedExtensions[NormalizeExt(ext)]
	return k, ok
}

// ContentTypeForExt returns the MIME type used when storing an object.
func ContentTypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "json":
		return "application/json"
	case "txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
