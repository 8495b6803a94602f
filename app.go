package main

import (
	"net/http"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/graph"
	"github.com/fruitstock/sav-uploader/internal/uploader"
)

// newHTTPClient returns the outbound client shared by the token exchange and
// Graph calls. The timeout bounds every single request.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Network.RequestTimeoutDuration()}
}

func userAgent(cfg *config.Config) string {
	if cfg.Network.UserAgent != "" {
		return cfg.Network.UserAgent
	}

	return "sav-uploader/" + version
}

// newCredentials builds the client-credential token source. No network call
// is made until the first token is needed.
func (cc *CLIContext) newCredentials(httpClient *http.Client) *graph.ClientCredentials {
	g := cc.Cfg.Graph

	return graph.NewClientCredentials(graph.CredentialsConfig{
		TenantID:      g.TenantID,
		ClientID:      g.ClientID,
		ClientSecret:  g.ClientSecret,
		Scopes:        g.Scopes,
		AuthorityHost: g.AuthorityHost,
		HTTPClient:    httpClient,
	}, cc.Logger)
}

// newUploader wires one credential provider, one Graph client and one
// Uploader for the life of the process.
func (cc *CLIContext) newUploader() (*uploader.Uploader, error) {
	if err := config.RequireCredentials(cc.Cfg, true); err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cc.Cfg)
	creds := cc.newCredentials(httpClient)

	client := graph.NewClient(
		graph.BaseURL(cc.Cfg.Graph.APIBaseURL, cc.Cfg.Graph.APIVersion),
		httpClient,
		creds,
		cc.Logger,
		userAgent(cc.Cfg),
	)

	return uploader.New(client, creds, uploader.Config{
		DriveID:       cc.Cfg.Graph.DriveID,
		DefaultFolder: cc.Cfg.Upload.DefaultFolder,
		LinkType:      cc.Cfg.Upload.LinkType,
		LinkScope:     cc.Cfg.Upload.LinkScope,
		VerifyFolder:  cc.Cfg.Upload.VerifyFolder,
	}, cc.Logger), nil
}
