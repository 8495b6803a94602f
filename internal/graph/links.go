package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// createLinkRequest is the createLink payload. Optional fields use omitempty
// so absent values are never sent: the API rejects explicit nulls.
type createLinkRequest struct {
	Type                       string `json:"type"`
	Scope                      string `json:"scope,omitempty"`
	Password                   string `json:"password,omitempty"`
	ExpirationDateTime         string `json:"expirationDateTime,omitempty"`
	RetainInheritedPermissions *bool  `json:"retainInheritedPermissions,omitempty"`
}

type permissionResponse struct {
	ID   string       `json:"id"`
	Link *sharingLink `json:"link"`
}

type sharingLink struct {
	Type   string `json:"type"`
	Scope  string `json:"scope"`
	WebURL string `json:"webUrl"`
}

// newCreateLinkRequest builds the request body for opts. Type defaults to
// LinkTypeView and Scope to LinkScopeAnonymous.
func newCreateLinkRequest(opts LinkOptions) createLinkRequest {
	retain := false

	req := createLinkRequest{
		Type:                       opts.Type,
		Scope:                      opts.Scope,
		Password:                   opts.Password,
		RetainInheritedPermissions: &retain,
	}

	if req.Type == "" {
		req.Type = LinkTypeView
	}

	if req.Scope == "" {
		req.Scope = LinkScopeAnonymous
	}

	if !opts.Expiration.IsZero() {
		req.ExpirationDateTime = opts.Expiration.UTC().Format(time.RFC3339)
	}

	return req
}

// CreateLink creates a sharing link for the given item.
func (c *Client) CreateLink(ctx context.Context, driveID, itemID string, opts LinkOptions) (*Link, error) {
	reqBody := newCreateLinkRequest(opts)

	c.logger.Info("creating sharing link",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("type", reqBody.Type),
		slog.String("scope", reqBody.Scope),
		slog.Bool("password", reqBody.Password != ""),
		slog.Bool("expires", reqBody.ExpirationDateTime != ""),
	)

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create link request: %w", err)
	}

	path := fmt.Sprintf("/drives/%s/items/%s/createLink", driveID, itemID)

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pr permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decoding create link response: %w", ErrMalformedResponse, err)
	}

	link := &Link{ID: pr.ID}
	if pr.Link != nil {
		link.Type = pr.Link.Type
		link.Scope = pr.Link.Scope
		link.WebURL = pr.Link.WebURL
	}

	c.logger.Debug("sharing link created",
		slog.String("item_id", itemID),
		slog.String("permission_id", link.ID),
	)

	return link, nil
}
