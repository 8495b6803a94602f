package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitstock/sav-uploader/internal/graph"
	"github.com/fruitstock/sav-uploader/internal/graph/graphtest"
)

const testDriveID = "b!drive"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires a real graph client and credential provider to the fakes.
type testEnv struct {
	graph  *graphtest.Server
	tokens *graphtest.TokenServer
	creds  *graph.ClientCredentials
	up     *Uploader
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	gs := graphtest.NewServer(t, testDriveID)
	ts := graphtest.NewTokenServer(t)

	creds := graph.NewClientCredentials(graph.CredentialsConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     ts.TokenURL(),
		HTTPClient:   ts.Client(),
	}, discardLogger())

	client := graph.NewClient(gs.URL, gs.Client(), creds, discardLogger(), "test-agent")

	cfg.DriveID = testDriveID

	return &testEnv{
		graph:  gs,
		tokens: ts,
		creds:  creds,
		up:     New(client, creds, cfg, discardLogger()),
	}
}

func jpeg1K() []byte {
	buf := make([]byte, 1024)
	copy(buf, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	return buf
}

func photoRequest() Request {
	return Request{
		Content:     jpeg1K(),
		FileName:    "photo.jpg",
		Folder:      "SAV_Images",
		ContentType: "image/jpeg",
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()

	require.Error(t, err)

	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, kind, ue.Kind, "error: %v", err)

	return ue
}

func TestUpload_RoundTripCreatesMissingFolder(t *testing.T) {
	env := newTestEnv(t, Config{})

	res, err := env.up.Upload(context.Background(), photoRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{
		graphtest.OpGetItem,
		graphtest.OpCreateFolder,
		graphtest.OpUpload,
		graphtest.OpCreateLink,
	}, env.graph.Ops())

	assert.True(t, res.Success)
	assert.Equal(t, "photo.jpg", res.FileName)
	assert.Equal(t, "image/jpeg", res.MimeType)
	assert.Equal(t, "SAV_Images", res.Folder)
	assert.Equal(t, int64(1024), res.Size)
	assert.NotEmpty(t, res.ShareURL)
	assert.Equal(t, "https://1drv.ms/u/s!"+res.FileID, res.ShareURL)
	assert.Equal(t, "perm-"+res.FileID, res.ShareID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), res.LastModified)
	assert.True(t, env.graph.HasFolder("SAV_Images"))

	calls := env.graph.Calls()
	assert.Equal(t, "/drives/"+testDriveID+"/root:/SAV_Images/photo.jpg:/content", calls[2].Path)
	assert.Equal(t, "image/jpeg", calls[2].ContentType)
	assert.Equal(t, jpeg1K(), calls[2].Body)
	assert.Equal(t, "Bearer test-access-token-1", calls[0].Auth)
}

func TestUpload_ExistingFolderIsNotCreated(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")

	for i := 0; i < 3; i++ {
		_, err := env.up.Upload(context.Background(), photoRequest())
		require.NoError(t, err)
	}

	assert.Zero(t, env.graph.Count(graphtest.OpCreateFolder))
	assert.Equal(t, 3, env.graph.Count(graphtest.OpUpload))
	assert.Equal(t, 1, env.tokens.Requests(), "token is cached across uploads")
}

func TestUpload_CreateFolderRequestBody(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := env.up.Upload(context.Background(), photoRequest())
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.graph.Calls()[1].Body, &body))

	assert.Equal(t, map[string]any{
		"name":                              "SAV_Images",
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}, body)
}

func TestUpload_LinkRequestOmitsAbsentOptionalFields(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")

	_, err := env.up.Upload(context.Background(), photoRequest())
	require.NoError(t, err)

	linkCall := env.graph.Calls()[2]
	require.Equal(t, graphtest.OpCreateLink, linkCall.Op)

	var body map[string]any
	require.NoError(t, json.Unmarshal(linkCall.Body, &body))

	assert.Equal(t, map[string]any{
		"type":                       "view",
		"scope":                      "anonymous",
		"retainInheritedPermissions": false,
	}, body)
	assert.NotContains(t, string(linkCall.Body), "null")
}

func TestUpload_LinkRequestCarriesOptionalFieldsWhenSet(t *testing.T) {
	env := newTestEnv(t, Config{LinkScope: graph.LinkScopeOrganization})
	env.graph.AddFolder("SAV_Images")

	req := photoRequest()
	req.LinkPassword = "hunter2"
	req.LinkExpiration = time.Date(2031, 12, 31, 0, 0, 0, 0, time.UTC)

	_, err := env.up.Upload(context.Background(), req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.graph.Calls()[2].Body, &body))

	assert.Equal(t, "organization", body["scope"])
	assert.Equal(t, "hunter2", body["password"])
	assert.Equal(t, "2031-12-31T00:00:00Z", body["expirationDateTime"])
}

func TestUpload_TooLargeFailsWithoutLink(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")
	env.graph.Fail(graphtest.OpUpload, http.StatusRequestEntityTooLarge, "maxFileSizeExceeded")

	res, err := env.up.Upload(context.Background(), photoRequest())
	assert.Nil(t, res)

	ue := requireKind(t, err, KindUpload)
	assert.Equal(t, http.StatusRequestEntityTooLarge, ue.ProviderStatus)
	assert.Equal(t, "maxFileSizeExceeded", ue.ProviderCode)
	assert.Equal(t, "req-maxFileSizeExceeded", ue.RequestID)
	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, graph.ErrTooLarge)
	assert.Zero(t, env.graph.Count(graphtest.OpCreateLink))
}

func TestUpload_CreateConflictIsFolderAccessError(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.Fail(graphtest.OpCreateFolder, http.StatusConflict, "nameAlreadyExists")

	_, err := env.up.Upload(context.Background(), photoRequest())

	ue := requireKind(t, err, KindFolderAccess)
	assert.Equal(t, http.StatusConflict, ue.ProviderStatus)
	assert.Equal(t, []string{graphtest.OpGetItem, graphtest.OpCreateFolder}, env.graph.Ops())
}

func TestUpload_LookupFailureSkipsUpload(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"forbidden", http.StatusForbidden, "accessDenied"},
		{"bad request", http.StatusBadRequest, "invalidRequest"},
		{"server error", http.StatusServiceUnavailable, "serviceNotAvailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			env.graph.Fail(graphtest.OpGetItem, tt.status, tt.code)

			_, err := env.up.Upload(context.Background(), photoRequest())

			ue := requireKind(t, err, KindFolderAccess)
			assert.Equal(t, tt.status, ue.ProviderStatus)
			assert.Equal(t, []string{graphtest.OpGetItem}, env.graph.Ops(), "no create or upload after a failed lookup")
		})
	}
}

func TestUpload_ShareLinkFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")
	env.graph.Fail(graphtest.OpCreateLink, http.StatusForbidden, "accessDenied")

	res, err := env.up.Upload(context.Background(), photoRequest())
	assert.Nil(t, res)

	ue := requireKind(t, err, KindShareLink)
	assert.Equal(t, http.StatusForbidden, ue.ProviderStatus)
	assert.ErrorIs(t, err, ErrShareLink)
}

func TestUpload_ShareURLFallsBackToItemWebURL(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")
	env.graph.OmitLinkURL()

	res, err := env.up.Upload(context.Background(), photoRequest())
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.sharepoint.com/Documents/SAV_Images/photo.jpg", res.ShareURL)
	assert.Equal(t, res.WebURL, res.ShareURL)
}

func TestUpload_AuthenticationFailureIssuesNoGraphCalls(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.tokens.Reject()

	_, err := env.up.Upload(context.Background(), photoRequest())

	ue := requireKind(t, err, KindAuthentication)
	assert.Equal(t, http.StatusUnauthorized, ue.ProviderStatus)
	assert.Equal(t, "invalid_client", ue.ProviderCode)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, graph.ErrAuthentication)
	assert.Empty(t, env.graph.Calls())
}

func TestUpload_TokenDeadlineIsUnexpected(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.tokens.Delay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := env.up.Upload(ctx, photoRequest())

	requireKind(t, err, KindUnexpected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, graph.ErrAuthentication)
	assert.Empty(t, env.graph.Calls())
}

func TestUpload_TokenEndpointUnreachableIsUnexpected(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.tokens.Close()

	_, err := env.up.Upload(context.Background(), photoRequest())

	ue := requireKind(t, err, KindUnexpected)
	assert.Zero(t, ue.ProviderStatus)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, env.graph.Calls())
}

func TestUpload_TokenProviderErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rejected", fmt.Errorf("%w: invalid_client", graph.ErrAuthentication), KindAuthentication},
		{"canceled", context.Canceled, KindUnexpected},
		{"transport", errors.New("graph: requesting access token: dial tcp: connection refused"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := okStub()

			_, err := New(drive, &stubCreds{err: tt.err}, Config{}, discardLogger()).
				Upload(context.Background(), Request{FileName: "a.txt"})

			requireKind(t, err, tt.want)
			assert.Empty(t, drive.calls)
		})
	}
}

func TestUpload_GraphUnauthorizedInvalidatesToken(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")
	env.graph.Fail(graphtest.OpUpload, http.StatusUnauthorized, "InvalidAuthenticationToken")

	_, err := env.up.Upload(context.Background(), photoRequest())
	requireKind(t, err, KindUpload)
	assert.True(t, env.creds.Expiry().IsZero(), "cached token dropped")

	_, err = env.up.Upload(context.Background(), photoRequest())
	require.Error(t, err)
	assert.Equal(t, 2, env.tokens.Requests())
}

func TestUpload_DefaultsFolderAndContentType(t *testing.T) {
	env := newTestEnv(t, Config{DefaultFolder: "Returns"})
	env.graph.AddFolder("Returns")

	res, err := env.up.Upload(context.Background(), Request{Content: []byte("x"), FileName: "note.bin"})
	require.NoError(t, err)

	assert.Equal(t, "Returns", res.Folder)
	assert.Equal(t, "application/octet-stream", res.MimeType)

	upload := env.graph.Calls()[1]
	assert.Equal(t, "/drives/"+testDriveID+"/root:/Returns/note.bin:/content", upload.Path)
	assert.Equal(t, "application/octet-stream", upload.ContentType)
}

func TestUpload_ConcurrentFirstUseSucceeds(t *testing.T) {
	env := newTestEnv(t, Config{})

	const uploads = 8

	var wg sync.WaitGroup

	errs := make([]error, uploads)
	results := make([]*Result, uploads)

	for i := 0; i < uploads; i++ {
		i := i
		wg.Add(1)

		go func() {
			defer wg.Done()
			results[i], errs[i] = env.up.Upload(context.Background(), photoRequest())
		}()
	}

	wg.Wait()

	for i := 0; i < uploads; i++ {
		require.NoError(t, errs[i])
		assert.NotEmpty(t, results[i].ShareURL)
	}

	creates := env.graph.Count(graphtest.OpCreateFolder)
	assert.GreaterOrEqual(t, creates, 1)
	assert.LessOrEqual(t, creates, uploads)
	assert.True(t, env.graph.HasFolder("SAV_Images"))
	assert.Equal(t, 1, env.tokens.Requests())
}

func TestUpload_FileNameIsCleaned(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.graph.AddFolder("SAV_Images")

	req := photoRequest()
	req.FileName = "C:\\Users\\sav\\Cafe\u0301.jpg"

	res, err := env.up.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Caf\u00e9.jpg", res.FileName)
}

func TestUpload_EmptyFileName(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := env.up.Upload(context.Background(), Request{Content: []byte("x"), FileName: "  "})
	requireKind(t, err, KindUnexpected)
	assert.Empty(t, env.graph.Calls())
}

// stubDrive is a programmable Drive for paths the fake server cannot reach.
type stubDrive struct {
	getItem      func(path string) (*graph.Item, error)
	createFolder func(parentID, name string) (*graph.Item, error)
	putContent   func(path string) (*graph.Item, error)
	createLink   func(itemID string) (*graph.Link, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubDrive) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)
}

func (s *stubDrive) GetItemByPath(_ context.Context, _, remotePath string) (*graph.Item, error) {
	s.record("get " + remotePath)
	return s.getItem(remotePath)
}

func (s *stubDrive) CreateFolder(_ context.Context, _, parentID, name, _ string) (*graph.Item, error) {
	s.record("create " + parentID + "/" + name)
	return s.createFolder(parentID, name)
}

func (s *stubDrive) PutContent(_ context.Context, _, remotePath, _ string, _ []byte) (*graph.Item, error) {
	s.record("put " + remotePath)
	return s.putContent(remotePath)
}

func (s *stubDrive) CreateLink(_ context.Context, _, itemID string, _ graph.LinkOptions) (*graph.Link, error) {
	s.record("link " + itemID)
	return s.createLink(itemID)
}

type stubCreds struct {
	err         error
	invalidated int
}

func (c *stubCreds) Token(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	return "tok", nil
}

func (c *stubCreds) Invalidate() { c.invalidated++ }

func notFound() error {
	return &graph.GraphError{StatusCode: http.StatusNotFound, Err: graph.ErrNotFound}
}

func okStub() *stubDrive {
	return &stubDrive{
		getItem: func(string) (*graph.Item, error) { return &graph.Item{ID: "f", IsFolder: true}, nil },
		createFolder: func(_, name string) (*graph.Item, error) {
			return &graph.Item{ID: "f", Name: name, IsFolder: true}, nil
		},
		putContent: func(string) (*graph.Item, error) {
			return &graph.Item{ID: "i", Name: "a.txt", WebURL: "https://web/a.txt"}, nil
		},
		createLink: func(string) (*graph.Link, error) { return &graph.Link{ID: "p", WebURL: "https://share/a"}, nil },
	}
}

func TestUpload_VerifyFolderAfterRename(t *testing.T) {
	tests := []struct {
		name      string
		verify    bool
		recheck   error
		wantErr   bool
		wantCalls int
	}{
		{"tolerated without verification", false, nil, false, 4},
		{"verified present", true, nil, false, 5},
		{"verified absent", true, notFound(), true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := okStub()
			lookups := 0
			drive.getItem = func(string) (*graph.Item, error) {
				lookups++
				if lookups == 1 {
					return nil, notFound()
				}

				if tt.recheck != nil {
					return nil, tt.recheck
				}

				return &graph.Item{ID: "f", Name: "Docs", IsFolder: true}, nil
			}
			drive.createFolder = func(_, _ string) (*graph.Item, error) {
				return &graph.Item{ID: "f2", Name: "Docs 1", IsFolder: true}, nil
			}

			up := New(drive, &stubCreds{}, Config{DriveID: "d", VerifyFolder: tt.verify}, discardLogger())

			_, err := up.Upload(context.Background(), Request{Content: []byte("a"), FileName: "a.txt", Folder: "Docs"})
			if tt.wantErr {
				requireKind(t, err, KindFolderAccess)
			} else {
				require.NoError(t, err)
			}

			assert.Len(t, drive.calls, tt.wantCalls)
		})
	}
}

func TestUpload_NestedFolderCreatedUnderParent(t *testing.T) {
	drive := okStub()
	drive.getItem = func(path string) (*graph.Item, error) {
		if path == "SAV/2024" {
			return nil, notFound()
		}

		return &graph.Item{ID: "parent-id", IsFolder: true}, nil
	}

	up := New(drive, &stubCreds{}, Config{DriveID: "d"}, discardLogger())

	_, err := up.Upload(context.Background(), Request{Content: []byte("a"), FileName: "a.txt", Folder: "/SAV/2024/"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get SAV/2024",
		"get SAV",
		"create parent-id/2024",
		"put SAV/2024/a.txt",
		"link i",
	}, drive.calls)
}

func TestUpload_DestinationIsAFile(t *testing.T) {
	drive := okStub()
	drive.getItem = func(string) (*graph.Item, error) { return &graph.Item{ID: "x", IsFolder: false}, nil }

	up := New(drive, &stubCreds{}, Config{DriveID: "d"}, discardLogger())

	_, err := up.Upload(context.Background(), Request{Content: []byte("a"), FileName: "a.txt"})
	requireKind(t, err, KindFolderAccess)
	assert.Len(t, drive.calls, 1)
}

func TestUpload_MalformedResponses(t *testing.T) {
	malformed := errors.Join(graph.ErrMalformedResponse, errors.New("no id"))

	t.Run("upload response", func(t *testing.T) {
		drive := okStub()
		drive.putContent = func(string) (*graph.Item, error) { return nil, malformed }

		_, err := New(drive, &stubCreds{}, Config{}, discardLogger()).
			Upload(context.Background(), Request{FileName: "a.txt"})
		requireKind(t, err, KindUnexpected)
	})

	t.Run("link response", func(t *testing.T) {
		drive := okStub()
		drive.createLink = func(string) (*graph.Link, error) { return nil, malformed }

		_, err := New(drive, &stubCreds{}, Config{}, discardLogger()).
			Upload(context.Background(), Request{FileName: "a.txt"})
		requireKind(t, err, KindShareLink)
	})

	t.Run("no url anywhere", func(t *testing.T) {
		drive := okStub()
		drive.putContent = func(string) (*graph.Item, error) { return &graph.Item{ID: "i"}, nil }
		drive.createLink = func(string) (*graph.Link, error) { return &graph.Link{ID: "p"}, nil }

		_, err := New(drive, &stubCreds{}, Config{}, discardLogger()).
			Upload(context.Background(), Request{FileName: "a.txt"})
		requireKind(t, err, KindUnexpected)
	})
}

func TestUpload_NetworkFailureDuringUpload(t *testing.T) {
	drive := okStub()
	drive.putContent = func(string) (*graph.Item, error) { return nil, errors.New("connection reset") }

	_, err := New(drive, &stubCreds{}, Config{}, discardLogger()).
		Upload(context.Background(), Request{FileName: "a.txt", Content: bytes.Repeat([]byte("a"), 10)})

	ue := requireKind(t, err, KindUpload)
	assert.Zero(t, ue.ProviderStatus)
}

func TestUpload_TokenErrorFromGraphCallIsAuthentication(t *testing.T) {
	drive := okStub()
	drive.getItem = func(string) (*graph.Item, error) {
		return nil, errors.Join(errors.New("graph: obtaining token"), graph.ErrAuthentication)
	}

	_, err := New(drive, &stubCreds{}, Config{}, discardLogger()).
		Upload(context.Background(), Request{FileName: "a.txt"})
	requireKind(t, err, KindAuthentication)
}
