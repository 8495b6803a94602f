package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/graph"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect the service credentials",
	}

	cmd.AddCommand(newAuthCheckCmd())

	return cmd
}

func newAuthCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Request an app-only token to verify the client credentials",
		Args:  cobra.NoArgs,
		RunE:  runAuthCheck,
	}
}

// authCheckOutput is the JSON schema for `auth check --json`.
type authCheckOutput struct {
	OK          bool   `json:"ok"`
	TenantID    string `json:"tenantId"`
	ClientID    string `json:"clientId"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	Description string `json:"description,omitempty"`
}

func runAuthCheck(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.RequireCredentials(cc.Cfg, false); err != nil {
		return err
	}

	creds := cc.newCredentials(newHTTPClient(cc.Cfg))

	out := authCheckOutput{
		TenantID: cc.Cfg.Graph.TenantID,
		ClientID: cc.Cfg.Graph.ClientID,
	}

	_, tokenErr := creds.Token(cmd.Context())
	if tokenErr != nil {
		_, out.ErrorCode, out.Description = graph.AuthErrorDetails(tokenErr)
		out.Error = tokenErr.Error()
	} else {
		out.OK = true
		out.ExpiresAt = creds.Expiry().UTC().Format(time.RFC3339)
	}

	if cc.Flags.JSON {
		if err := printJSON(os.Stdout, out); err != nil {
			return err
		}

		return tokenErr
	}

	if tokenErr != nil {
		if out.Description != "" {
			return fmt.Errorf("%w\n%s", tokenErr, out.Description)
		}

		return tokenErr
	}

	fmt.Printf("Credentials OK for client %s in tenant %s (token valid until %s).\n",
		out.ClientID, out.TenantID, out.ExpiresAt)

	return nil
}
