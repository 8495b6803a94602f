// Package uploader stores files in a OneDrive folder and returns a shareable
// link for each one. An upload is a fixed sequence of Graph calls:
//
//  1. obtain an access token
//  2. make sure the destination folder exists, creating it when missing
//  3. write the file content with a single PUT
//  4. create an anonymous view link for the new item
//
// Every failure is returned as an *Error classified by the step that failed.
// Nothing is retried.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/fruitstock/sav-uploader/internal/graph"
)

// DefaultFolder is used when neither the request nor the configuration
// names a destination folder.
const DefaultFolder = "SAV_Images"

const defaultContentType = "application/octet-stream"

// Step names reported in Error.Op.
const (
	opAuthenticate = "authenticate"
	opEnsureFolder = "ensure folder"
	opUpload       = "upload"
	opCreateLink   = "create link"
	opNormalize    = "normalize"
)

// Drive is the subset of the Graph client used by the Uploader.
type Drive interface {
	GetItemByPath(ctx context.Context, driveID, remotePath string) (*graph.Item, error)
	CreateFolder(ctx context.Context, driveID, parentID, name, conflictBehavior string) (*graph.Item, error)
	PutContent(ctx context.Context, driveID, remotePath, contentType string, content []byte) (*graph.Item, error)
	CreateLink(ctx context.Context, driveID, itemID string, opts graph.LinkOptions) (*graph.Link, error)
}

// Credentials provides the access token and lets the Uploader discard it
// when Graph rejects it.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Config holds the fixed upload destination and link settings.
type Config struct {
	DriveID       string
	DefaultFolder string
	LinkType      string // graph.LinkTypeView when empty
	LinkScope     string // graph.LinkScopeAnonymous when empty

	// VerifyFolder re-reads the folder by its exact name when Graph created
	// it under a suffixed one, failing the upload if the name is still absent.
	VerifyFolder bool
}

// Request is one file to upload.
type Request struct {
	Content     []byte
	FileName    string
	Folder      string // Config.DefaultFolder when empty
	ContentType string // application/octet-stream when empty

	// Optional link protection. Zero values are not sent.
	LinkPassword   string
	LinkExpiration time.Time
}

// Result describes a stored file and its share link.
type Result struct {
	Success      bool
	FileID       string
	FileName     string
	Folder       string
	WebURL       string
	ShareURL     string
	ShareID      string
	DownloadURL  string
	Size         int64
	LastModified time.Time
	MimeType     string
}

// Uploader runs the upload sequence. It holds no per-upload state and is
// safe for concurrent use.
type Uploader struct {
	drive  Drive
	creds  Credentials
	cfg    Config
	logger *slog.Logger
}

// New creates an Uploader.
func New(drive Drive, creds Credentials, cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DefaultFolder == "" {
		cfg.DefaultFolder = DefaultFolder
	}

	if cfg.LinkType == "" {
		cfg.LinkType = graph.LinkTypeView
	}

	if cfg.LinkScope == "" {
		cfg.LinkScope = graph.LinkScopeAnonymous
	}

	return &Uploader{drive: drive, creds: creds, cfg: cfg, logger: logger}
}

// Upload stores req.Content as <folder>/<file name> and returns the share
// link. On success Result.ShareURL is never empty.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	name := CleanFileName(req.FileName)
	if name == "" {
		return nil, u.fail(KindUnexpected, opUpload, "file name is required", nil)
	}

	folder := norm.NFC.String(strings.Trim(req.Folder, "/"))
	if folder == "" {
		folder = u.cfg.DefaultFolder
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	log := u.logger.With(
		slog.String("file", name),
		slog.String("folder", folder),
	)

	log.Info("upload started",
		slog.Int("size", len(req.Content)),
		slog.String("content_type", contentType),
	)

	started := time.Now()

	if _, err := u.creds.Token(ctx); err != nil {
		return nil, u.fail(KindUnexpected, opAuthenticate, "access token unavailable", err)
	}

	if err := u.ensureFolder(ctx, log, folder); err != nil {
		return nil, err
	}

	item, err := u.drive.PutContent(ctx, u.cfg.DriveID, folder+"/"+name, contentType, req.Content)
	if err != nil {
		return nil, u.fail(KindUpload, opUpload, "file upload failed", err)
	}

	log.Debug("content written", slog.String("item_id", item.ID))

	link, err := u.drive.CreateLink(ctx, u.cfg.DriveID, item.ID, graph.LinkOptions{
		Type:       u.cfg.LinkType,
		Scope:      u.cfg.LinkScope,
		Password:   req.LinkPassword,
		Expiration: req.LinkExpiration,
	})
	if err != nil {
		return nil, u.fail(KindShareLink, opCreateLink, "share link creation failed", err)
	}

	res, err := normalize(item, link, folder, name, contentType)
	if err != nil {
		return nil, u.fail(KindUnexpected, opNormalize, "malformed provider response", err)
	}

	log.Info("upload completed",
		slog.String("item_id", res.FileID),
		slog.Int64("size", res.Size),
		slog.Duration("duration", time.Since(started)),
	)

	return res, nil
}

// ensureFolder makes sure folder exists under the drive root. A missing
// folder is created with rename-on-conflict, so a concurrent creator never
// fails the upload.
func (u *Uploader) ensureFolder(ctx context.Context, log *slog.Logger, folder string) error {
	item, err := u.drive.GetItemByPath(ctx, u.cfg.DriveID, folder)
	if err == nil {
		if !item.IsFolder {
			return u.fail(KindFolderAccess, opEnsureFolder,
				fmt.Sprintf("%q exists and is not a folder", folder), nil)
		}

		log.Debug("folder exists", slog.String("folder_id", item.ID))

		return nil
	}

	if !errors.Is(err, graph.ErrNotFound) {
		return u.fail(KindFolderAccess, opEnsureFolder, "folder lookup failed", err)
	}

	parentID, name := "root", folder

	if i := strings.LastIndex(folder, "/"); i >= 0 {
		parent, perr := u.drive.GetItemByPath(ctx, u.cfg.DriveID, folder[:i])
		if perr != nil {
			return u.fail(KindFolderAccess, opEnsureFolder, "parent folder lookup failed", perr)
		}

		parentID, name = parent.ID, folder[i+1:]
	}

	log.Info("folder not found, creating it")

	created, err := u.drive.CreateFolder(ctx, u.cfg.DriveID, parentID, name, graph.ConflictRename)
	if err != nil {
		return u.fail(KindFolderAccess, opEnsureFolder, "folder creation failed", err)
	}

	if created.Name == name {
		log.Info("folder created", slog.String("folder_id", created.ID))
		return nil
	}

	log.Warn("folder created under a different name",
		slog.String("created_name", created.Name),
		slog.String("folder_id", created.ID),
	)

	if !u.cfg.VerifyFolder {
		return nil
	}

	if _, err := u.drive.GetItemByPath(ctx, u.cfg.DriveID, folder); err != nil {
		return u.fail(KindFolderAccess, opEnsureFolder, "folder missing after creation", err)
	}

	return nil
}

// fail classifies err for the given step and logs it. Token failures
// surfacing from any Graph call are authentication failures; undecodable
// provider responses are unexpected except for the link step.
func (u *Uploader) fail(kind Kind, op, message string, err error) *Error {
	switch {
	case errors.Is(err, graph.ErrAuthentication):
		kind, message = KindAuthentication, "authentication failed"
	case errors.Is(err, graph.ErrMalformedResponse) && kind != KindShareLink:
		kind, message = KindUnexpected, "malformed provider response"
	}

	if errors.Is(err, graph.ErrUnauthorized) {
		u.creds.Invalidate()
	}

	e := newError(kind, op, message, err)

	attrs := []any{
		slog.String("kind", kind.String()),
		slog.String("op", op),
		slog.Int("provider_status", e.ProviderStatus),
	}

	if e.ProviderCode != "" {
		attrs = append(attrs, slog.String("provider_code", e.ProviderCode))
	}

	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	u.logger.Error("upload failed: "+message, attrs...)

	return e
}

// normalize builds the Result. The share URL falls back to the item's web
// URL; a result without either is rejected.
func normalize(item *graph.Item, link *graph.Link, folder, name, contentType string) (*Result, error) {
	shareURL := link.WebURL
	if shareURL == "" {
		shareURL = item.WebURL
	}

	if shareURL == "" {
		return nil, fmt.Errorf("%w: neither link nor item carries a web URL", graph.ErrMalformedResponse)
	}

	downloadURL := item.DownloadURL
	if downloadURL == "" {
		downloadURL = shareURL
	}

	if item.Name != "" {
		name = item.Name
	}

	return &Result{
		Success:      true,
		FileID:       item.ID,
		FileName:     name,
		Folder:       folder,
		WebURL:       item.WebURL,
		ShareURL:     shareURL,
		ShareID:      link.ID,
		DownloadURL:  downloadURL,
		Size:         item.Size,
		LastModified: item.ModifiedAt,
		MimeType:     contentType,
	}, nil
}

// CleanFileName normalizes name to NFC and strips any directory part a
// client may have sent along with it. An empty result means the name is
// unusable.
func CleanFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "." || name == ".." {
		return ""
	}

	return name
}
