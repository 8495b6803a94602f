package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitstock/sav-uploader/internal/uploader"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file>",
		Short: "Upload a file and print its share link",
		Long: `Upload one local file through the same sequence the server uses: ensure
the folder exists, write the content, create an anonymous view link.`,
		Args: cobra.ExactArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("folder", "", "destination folder (default upload.default_folder)")
	cmd.Flags().String("content-type", "", "content type (default: from extension, else sniffed)")
	cmd.Flags().String("name", "", "file name on OneDrive (default: local file name)")

	return cmd
}

// putOutput is the JSON schema for `put --json`.
type putOutput struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Folder       string `json:"folder"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
	WebURL       string `json:"webUrl"`
	ShareLink    string `json:"shareLink"`
	LastModified string `json:"lastModified,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	localPath := args[0]

	folder, _ := cmd.Flags().GetString("folder")            //nolint:errcheck // flag is registered
	contentType, _ := cmd.Flags().GetString("content-type") //nolint:errcheck // flag is registered
	name, _ := cmd.Flags().GetString("name")                //nolint:errcheck // flag is registered

	if name == "" {
		name = filepath.Base(localPath)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", localPath)
	}

	if limit := cc.Cfg.Upload.MaxUploadBytes(); info.Size() > limit {
		return fmt.Errorf("%s is %s, above upload.max_upload_size (%s)",
			localPath, formatSize(info.Size()), cc.Cfg.Upload.MaxUploadSize)
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	if contentType == "" {
		contentType = guessContentType(name, content)
	}

	up, err := cc.newUploader()
	if err != nil {
		return err
	}

	cc.Logger.Debug("put starting",
		slog.String("local", localPath),
		slog.String("name", name),
		slog.Int64("size", info.Size()),
		slog.String("content_type", contentType),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx = shutdownContext(ctx, cc.Logger, 0)

	res, err := up.Upload(ctx, uploader.Request{
		Content:     content,
		FileName:    name,
		Folder:      folder,
		ContentType: contentType,
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := putOutput{
			ID:        res.FileID,
			Name:      res.FileName,
			Folder:    res.Folder,
			Size:      res.Size,
			MimeType:  res.MimeType,
			WebURL:    res.WebURL,
			ShareLink: res.ShareURL,
		}

		if !res.LastModified.IsZero() {
			out.LastModified = res.LastModified.UTC().Format(time.RFC3339)
		}

		return printJSON(os.Stdout, out)
	}

	cc.Statusf("Uploaded %s (%s) to %s\n", res.FileName, formatSize(res.Size), res.Folder)
	fmt.Println(res.ShareURL)

	return nil
}

// guessContentType uses the file extension, then content sniffing.
func guessContentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}

	mt, _, err := mime.ParseMediaType(http.DetectContentType(content))
	if err != nil {
		return "application/octet-stream"
	}

	return mt
}
