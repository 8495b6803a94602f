package graph

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// simpleUploadMaxSize is the documented limit for a single-request upload (4 MB
// on personal drives, 250 MB on business drives). Larger bodies are still
// sent; Graph answers 413 when the drive refuses them.
const simpleUploadMaxSize = 4 * 1024 * 1024

// PutContent uploads content to remotePath (relative to the drive root) with
// a single PUT request, replacing any existing file at that path. The request
// is never retried.
func (c *Client) PutContent(
	ctx context.Context, driveID, remotePath, contentType string, content []byte,
) (*Item, error) {
	remotePath = strings.Trim(remotePath, "/")

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.logger.Info("uploading content",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
		slog.String("content_type", contentType),
		slog.Int("size", len(content)),
	)

	if len(content) > simpleUploadMaxSize {
		c.logger.Debug("content exceeds personal-drive simple upload size",
			slog.Int("size", len(content)),
			slog.Int("limit", simpleUploadMaxSize),
		)
	}

	apiPath := fmt.Sprintf("/drives/%s/root:/%s:/content", driveID, encodePathSegments(remotePath))

	resp, err := c.do(ctx, http.MethodPut, apiPath, contentType, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "upload")
}
