package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/graph"
	"github.com/fruitstock/sav-uploader/internal/graph/graphtest"
	"github.com/fruitstock/sav-uploader/internal/uploader"
)

// newGraphBackedServer wires the real uploader and Graph client to the fakes.
func newGraphBackedServer(t *testing.T) (*Server, *graphtest.Server, *graphtest.TokenServer) {
	t.Helper()

	gs := graphtest.NewServer(t, "b!drive")
	ts := graphtest.NewTokenServer(t)

	creds := graph.NewClientCredentials(graph.CredentialsConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     ts.TokenURL(),
		HTTPClient:   ts.Client(),
	}, discardLogger())

	client := graph.NewClient(gs.URL, gs.Client(), creds, discardLogger(), "sav-uploader/test")
	up := uploader.New(client, creds, uploader.Config{DriveID: "b!drive"}, discardLogger())

	return newTestServer(t, up, nil), gs, ts
}

func TestUploadThroughGraph(t *testing.T) {
	s, gs, _ := newGraphBackedServer(t)

	rec := postFile(t, s, "/api/upload-onedrive", "photo.jpg", "image/jpeg", []byte("jpeg-bytes"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	file, ok := decode(t, rec)["file"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "photo.jpg", file["name"])
	assert.Contains(t, file["shareLink"], "https://1drv.ms/u/s!")
	assert.Equal(t, "https://contoso.sharepoint.com/Documents/SAV_Images/photo.jpg", file["url"])
	assert.Equal(t, "image/jpeg", file["mimeType"])

	assert.Equal(t, []string{
		graphtest.OpGetItem, graphtest.OpCreateFolder, graphtest.OpUpload, graphtest.OpCreateLink,
	}, gs.Ops())
	assert.True(t, gs.HasFolder("SAV_Images"))
}

func TestUploadThroughGraph_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(gs *graphtest.Server, ts *graphtest.TokenServer)
		status int
	}{
		{"credentials rejected", func(_ *graphtest.Server, ts *graphtest.TokenServer) { ts.Reject() }, http.StatusUnauthorized},
		{"folder forbidden", func(gs *graphtest.Server, _ *graphtest.TokenServer) {
			gs.Fail(graphtest.OpGetItem, http.StatusForbidden, "accessDenied")
		}, http.StatusForbidden},
		{"folder bad request", func(gs *graphtest.Server, _ *graphtest.TokenServer) {
			gs.Fail(graphtest.OpGetItem, http.StatusBadRequest, "invalidRequest")
		}, http.StatusBadRequest},
		{"upload too large", func(gs *graphtest.Server, _ *graphtest.TokenServer) {
			gs.AddFolder("SAV_Images")
			gs.Fail(graphtest.OpUpload, http.StatusRequestEntityTooLarge, "maxFileSizeExceeded")
		}, http.StatusRequestEntityTooLarge},
		{"share link refused", func(gs *graphtest.Server, _ *graphtest.TokenServer) {
			gs.AddFolder("SAV_Images")
			gs.Fail(graphtest.OpCreateLink, http.StatusForbidden, "accessDenied")
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, gs, ts := newGraphBackedServer(t)
			tt.setup(gs, ts)

			rec := postFile(t, s, "/api/upload", "photo.jpg", "image/jpeg", []byte("x"))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["details"])
		})
	}
}

func TestServerConfigDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.True(t, typeAllowed("image/heic", cfg.Upload.AllowedTypes))
	assert.True(t, typeAllowed("application/vnd.openxmlformats-officedocument.wordprocessingml.document", cfg.Upload.AllowedTypes))
	assert.False(t, typeAllowed("application/x-msdownload", cfg.Upload.AllowedTypes))
}
