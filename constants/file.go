package constants

import "strings"

// File kinds stored on bills.file_type.
const (
	FileKindPDF = "pdf"
	FileKindJPG = "jpg"
	FileKindPNG = "png"
)

// AllowedExtensions holds the allowed upload extensions (lowercase, without '.').
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// AllowedMIMETypes is checked against the client supplied content type.
var AllowedMIMETypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FileKindForExt maps an extension to the stored file kind, "" when unsupported.
func FileKindForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return FileKindPDF
	case "jpg", "jpeg":
		return FileKindJPG
	case "png":
		return FileKindPNG
	default:
		return ""
	}
}

// MIMEForKind returns the content type used when a stored file is sent to the analyzer.
func MIMEForKind(kind string) string {
	switch kind {
	case FileKindPDF:
		return "application/pdf"
	case FileKindJPG:
		return "image/jpeg"
	case FileKindPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
