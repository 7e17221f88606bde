package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
)

const (
	maxUploadSize      = 5 << 20
	maxMultipartMemory = 1 << 20
	multipartOverhead  = 64 << 10
)

type uploadedFile struct {
	file   multipart.File
	header *multipart.FileHeader
}

func (u uploadedFile) contentType() string {
	return strings.TrimSpace(u.header.Header.Get("Content-Type"))
}

// readUploadedFile pulls the first file found under one of fields. It writes the error response
// and returns false when the form is malformed, too large, or carries no file.
func readUploadedFile(w http.ResponseWriter, r *http.Request, fields ...string) (uploadedFile, bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form data is required", http.StatusBadRequest))
		}
		return uploadedFile{}, false
	}
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return uploadedFile{file: file, header: header}, true
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "file is required", http.StatusBadRequest))
	return uploadedFile{}, false
}
