// Package receipt turns an uploaded receipt into reviewed expense drafts:
// ingestion, model extraction, category reconciliation and review.
package receipt

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// MaxFileSize is the largest accepted upload, 10 MiB.
const MaxFileSize = 10 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported file type: use JPEG, PNG, WEBP or PDF")
	ErrFileTooLarge    = errors.New("file too large: the limit is 10 MB")
	ErrEmptyFile       = errors.New("empty file")
	ErrInvalidDataURI  = errors.New("invalid data URI")
)

var supportedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// SupportedTypes lists the accepted MIME types, for the upload form.
func SupportedTypes() []string {
	return []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
}

// DetectType returns the declared MIME type when it is specific, and the
// sniffed one otherwise. Parameters such as charset are dropped.
func DetectType(declared string, data []byte) string {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		mime = "image/jpeg"
	}
	if mime == "" || mime == "application/octet-stream" {
		sniffed := http.DetectContentType(data)
		if i := strings.IndexByte(sniffed, ';'); i >= 0 {
			sniffed = sniffed[:i]
		}
		return sniffed
	}
	return mime
}

// Ingest validates an upload and encodes it as a base64 data URI.
func Ingest(mime string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}
	if !supportedTypes[mime] {
		return "", ErrUnsupportedType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// ParseDataURI is the inverse of Ingest.
func ParseDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok || mime == "" {
		return "", nil, ErrInvalidDataURI
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURI
	}
	return mime, data, nil
}
