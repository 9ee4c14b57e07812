// Package filetype sniffs uploaded content to pick a MIME type and an object key extension.
package filetype

import (
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrUnsupported = errors.New("unsupported file type")

// Detected is the result of sniffing a payload
type Detected struct {
	MimeType  string
	Extension string
}

// Detect inspects the leading bytes of data. Content without a known
// extension is rejected with ErrUnsupported.
func Detect(data []byte) (Detected, error) {
	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		return Detected{}, ErrUnsupported
	}

	// "text/plain; charset=utf-8" is stored without parameters
	mimeType, _, _ := strings.Cut(mtype.String(), ";")
	return Detected{MimeType: strings.TrimSpace(mimeType), Extension: ext}, nil
}
