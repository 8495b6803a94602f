package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/fruitstock/sav-uploader/internal/uploader"
)

const (
	fileField = "file"

	// multipartOverhead is allowed on top of max_upload_size for boundaries
	// and part headers.
	multipartOverhead = 64 << 10

	octetStream = "application/octet-stream"
)

var (
	errFileTooLarge = errors.New("file too large")
	errMissingFile  = errors.New("no file part")
	errBadMultipart = errors.New("malformed multipart body")
)

type uploadResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	File    uploadedFile `json:"file"`
}

type uploadedFile struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ShareLink    string `json:"shareLink"`
	ID           string `json:"id"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified,omitempty"`
	MimeType     string `json:"mimeType"`
}

// filePart is the decoded "file" field of an upload form.
type filePart struct {
	name        string
	contentType string
	data        []byte
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	cfg := s.holder.Config()
	limit := cfg.Upload.MaxUploadBytes()

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	part, err := readFilePart(r, limit)

	switch {
	case errors.Is(err, errFileTooLarge):
		s.writeError(w, r, http.StatusBadRequest, msgFileTooLarge,
			fmt.Errorf("file exceeds %s", cfg.Upload.MaxUploadSize))

		return
	case errors.Is(err, errMissingFile):
		s.writeError(w, r, http.StatusBadRequest, msgMissingFile, err)
		return
	case err != nil:
		s.writeError(w, r, http.StatusBadRequest, msgBadMultipart, err)
		return
	}

	contentType := detectContentType(part.contentType, part.data)
	if !typeAllowed(contentType, cfg.Upload.AllowedTypes) {
		s.writeError(w, r, http.StatusUnsupportedMediaType, msgTypeNotAllowed,
			fmt.Errorf("type %s is not accepted", contentType))

		return
	}

	s.logger.InfoContext(r.Context(), "upload received",
		slog.String("name", part.name),
		slog.Int("size", len(part.data)),
		slog.String("content_type", contentType),
	)

	res, err := s.submit.Upload(r.Context(), uploader.Request{
		Content:     part.data,
		FileName:    part.name,
		Folder:      cfg.Upload.DefaultFolder,
		ContentType: contentType,
	})
	if err != nil {
		s.writeUploadError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUploadResponse(res, contentType))
}

func newUploadResponse(res *uploader.Result, contentType string) uploadResponse {
	f := uploadedFile{
		Name:      res.FileName,
		URL:       res.WebURL,
		ShareLink: res.ShareURL,
		ID:        res.FileID,
		Size:      res.Size,
		MimeType:  res.MimeType,
	}

	if f.MimeType == "" {
		f.MimeType = contentType
	}

	if !res.LastModified.IsZero() {
		f.LastModified = res.LastModified.UTC().Format(time.RFC3339)
	}

	return uploadResponse{
		Success: res.Success,
		Message: "file uploaded successfully",
		File:    f,
	}
}

// readFilePart streams the multipart body and returns the first part named
// "file" that carries a file name. Other fields are skipped.
func readFilePart(r *http.Request, limit int64) (*filePart, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadMultipart, err)
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errMissingFile
		}

		if err != nil {
			return nil, bodyError(err)
		}

		if p.FormName() != fileField || p.FileName() == "" {
			p.Close()
			continue
		}

		if uploader.CleanFileName(p.FileName()) == "" {
			p.Close()
			return nil, errMissingFile
		}

		data, err := io.ReadAll(io.LimitReader(p, limit+1))
		p.Close()

		if err != nil {
			return nil, bodyError(err)
		}

		if int64(len(data)) > limit {
			return nil, errFileTooLarge
		}

		return &filePart{
			name:        p.FileName(),
			contentType: p.Header.Get("Content-Type"),
			data:        data,
		}, nil
	}
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errFileTooLarge
	}

	return fmt.Errorf("%w: %w", errBadMultipart, err)
}

// detectContentType trusts the declared type unless it is missing or
// generic, in which case the content is sniffed.
func detectContentType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != octetStream {
		return mt
	}

	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return octetStream
	}

	return mt
}

// typeAllowed matches exact entries and "major/*" wildcards.
func typeAllowed(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, contentType) {
			return true
		}

		if major, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(contentType, strings.ToLower(major)+"/") {
			return true
		}
	}

	return false
}
