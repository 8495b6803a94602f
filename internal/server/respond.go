package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fruitstock/sav-uploader/internal/logging"
	"github.com/fruitstock/sav-uploader/internal/uploader"
)

// Client-facing error messages.
const (
	msgNotFound         = "endpoint not found"
	msgMethodNotAllowed = "method not allowed"
	msgServerError      = "an error occurred on the server"
	msgFileTooLarge     = "file too large"
	msgMissingFile      = "no file provided"
	msgBadMultipart     = "invalid multipart request"
	msgTypeNotAllowed   = "file type not supported; accepted types are images, PDF, Office documents, text files and archives"
	msgAuthentication   = "authentication failed, check the Microsoft credentials"
	msgAccessDenied     = "access denied, check the application permissions"
	msgBadRequest       = "invalid request, check the data sent"
	msgUploadFailed     = "upload to OneDrive failed"
	msgShareLinkFailed  = "the file was stored but its share link could not be created"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// writeError writes the failure envelope. err's text goes into details
// outside production only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	body := errorResponse{
		Error:     message,
		RequestID: logging.RequestID(r.Context()),
	}

	if err != nil && !s.holder.Config().Server.IsProduction() {
		body.Details = err.Error()
	}

	writeJSON(w, status, body)
}

// uploadErrorStatus maps a failed upload to its HTTP status and message.
func uploadErrorStatus(err error) (int, string) {
	var ue *uploader.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, msgUploadFailed
	}

	switch ue.Kind {
	case uploader.KindAuthentication:
		return http.StatusUnauthorized, msgAuthentication
	case uploader.KindFolderAccess:
		switch ue.ProviderStatus {
		case http.StatusBadRequest:
			return http.StatusBadRequest, msgBadRequest
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, msgAccessDenied
		default:
			return http.StatusForbidden, msgAccessDenied
		}
	case uploader.KindUpload:
		if ue.ProviderStatus >= http.StatusBadRequest && ue.ProviderStatus <= 599 {
			return ue.ProviderStatus, msgUploadFailed
		}

		return http.StatusBadGateway, msgUploadFailed
	case uploader.KindShareLink:
		return http.StatusInternalServerError, msgShareLinkFailed
	default:
		return http.StatusInternalServerError, msgUploadFailed
	}
}

func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := uploadErrorStatus(err)

	s.logger.LogAttrs(r.Context(), slog.LevelDebug, "upload rejected",
		slog.Int("status", status),
		slog.String("kind", uploader.KindOf(err).String()),
	)

	s.writeError(w, r, status, message, err)
}
