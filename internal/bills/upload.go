package bills

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

// UploadInput is one uploaded document. Size is advisory; the body is measured.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

var signatures = map[string][][]byte{
	constants.FileKindPDF: {[]byte("%PDF-")},
	constants.FileKindPNG: {[]byte("\x89PNG\r\n\x1a\n")},
	constants.FileKindJPG: {[]byte("\xff\xd8\xff")},
}

// readUpload validates in and returns the file kind and its bytes. Nothing is
// stored when it fails.
func readUpload(in UploadInput, maxBytes int64) (string, []byte, error) {
	ext := constants.NormalizeExt(filepath.Ext(in.FileName))
	v := common.NewValidator().
		Field("file_name", in.FileName, common.Required).
		Field("extension", ext, common.OneOf(constants.AllowedExtensions))
	if ct := mediaType(in.ContentType); ct != "" {
		v.Field("content_type", ct, common.OneOf(constants.AllowedMIMETypes))
	}
	if in.Size > 0 {
		v.Field("size", in.Size, common.MaxBytes(maxBytes))
	}
	if in.Body == nil {
		v.Field("file", nil, common.Required)
	}
	if err := v.Err(); err != nil {
		return "", nil, err
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, maxBytes+1))
	if err != nil {
		return "", nil, common.Validationf("read upload: %v", err)
	}
	if err := common.NewValidator().Field("size", int64(len(data)), common.MaxBytes(maxBytes)).Err(); err != nil {
		return "", nil, err
	}

	kind := constants.FileKindForExt(ext)
	if !hasSignature(kind, data) {
		return "", nil, common.Validationf("file content does not match extension %q", ext)
	}
	return kind, data, nil
}

func hasSignature(kind string, data []byte) bool {
	for _, sig := range signatures[kind] {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
