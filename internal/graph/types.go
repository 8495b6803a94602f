package graph

import "time"

// Item represents a OneDrive drive item (file or folder).
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID          string
	Name        string
	DriveID     string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID    string
	Size        int64
	ETag        string
	IsFolder    bool
	MimeType    string
	WebURL      string
	DownloadURL string // pre-authenticated, ephemeral; never log
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Link types and scopes accepted by createLink.
const (
	LinkTypeView  = "view"
	LinkTypeEdit  = "edit"
	LinkTypeEmbed = "embed"

	LinkScopeAnonymous    = "anonymous"
	LinkScopeOrganization = "organization"
	LinkScopeUsers        = "users"
)

// LinkOptions configures a sharing link. Password and Expiration are
// optional; zero values are omitted from the request entirely.
type LinkOptions struct {
	Type       string
	Scope      string
	Password   string
	Expiration time.Time
}

// Link is a sharing permission created on a drive item.
type Link struct {
	ID     string
	Type   string
	Scope  string
	WebURL string
}

// Conflict behaviors understood by the Graph API for item creation.
const (
	ConflictFail    = "fail"
	ConflictRename  = "rename"
	ConflictReplace = "replace"
)
