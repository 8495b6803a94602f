package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Timestamp validation bounds: timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, %, and spaces are encoded per-segment so the
// resulting path is safe for interpolation into Graph API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// driveItemResponse mirrors the Graph API driveItem JSON.
// Unexported; callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	WebURL               string       `json:"webUrl"`
	CreatedDateTime      string       `json:"createdDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	DownloadURL          string       `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type parentRef struct {
	ID      string `json:"id"`
	DriveID string `json:"driveId"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type createFolderRequest struct {
	Name             string   `json:"name"`
	Folder           struct{} `json:"folder"`
	ConflictBehavior string   `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		ETag:        d.ETag,
		IsFolder:    d.Folder != nil,
		WebURL:      d.WebURL,
		DownloadURL: d.DownloadURL,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
		item.ParentID = d.ParentReference.ID
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// decodeItem decodes a driveItem body. An item without an id is treated as
// a malformed response.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %w", ErrMalformedResponse, what, err)
	}

	if dir.ID == "" {
		return nil, fmt.Errorf("%w: %s response has no item id", ErrMalformedResponse, what)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// GetItemByPath retrieves a drive item by its path relative to the drive root.
// Leading and trailing slashes are ignored.
func (c *Client) GetItemByPath(ctx context.Context, driveID, remotePath string) (*Item, error) {
	remotePath = strings.Trim(remotePath, "/")

	c.logger.Info("getting item by path",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	apiPath := fmt.Sprintf("/drives/%s/root:/%s:", driveID, encodePathSegments(remotePath))

	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// CreateFolder creates a new folder under the given parent ("root" for the
// drive root). conflictBehavior is one of ConflictFail, ConflictRename or
// ConflictReplace; with ConflictFail a name collision returns ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentID, name, conflictBehavior string) (*Item, error) {
	if conflictBehavior == "" {
		conflictBehavior = ConflictFail
	}

	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.String("conflict_behavior", conflictBehavior),
	)

	path := fmt.Sprintf("/drives/%s/items/%s/children", driveID, parentID)

	reqBody := createFolderRequest{
		Name:             name,
		ConflictBehavior: conflictBehavior,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}
