package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/google"
	"github.com/teemow/gistflow/internal/instrumentation"
)

var fileFields googleapi.Field = "id,name,mimeType,size,createdTime,modifiedTime,webViewLink,parents"

// Client creates files in the Drive of one account.
type Client struct {
	files   *drive.FilesService
	account string
	metrics *instrumentation.Metrics
}

// NewClientForAccount authenticates with the stored token of account.
func NewClientForAccount(ctx context.Context, tokens google.HTTPClientProvider, account string, metrics *instrumentation.Metrics) (*Client, error) {
	httpClient, err := tokens.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, account, metrics, option.WithHTTPClient(httpClient))
}

// NewClient builds a client from raw API options. Tests point it at an
// httptest server with option.WithEndpoint.
func NewClient(ctx context.Context, account string, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &Client{files: svc.Files, account: account, metrics: metrics}, nil
}

// Account is the token store account the client acts as.
func (c *Client) Account() string {
	return c.account
}

// Create uploads u as a single multipart request. API failures are
// classified with google.ClassifyError.
func (c *Client) Create(ctx context.Context, u Upload) (f *File, err error) {
	switch {
	case u.Name == "":
		return nil, gist.Configuration("drive.upload", errors.New("file name is required"))
	case u.Body == nil:
		return nil, gist.Configuration("drive.upload", errors.New("file body is required"))
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationUpload)
	started := time.Now()
	defer func() {
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, instrumentation.OperationUpload,
			instrumentation.StatusFor(err), time.Since(started))
		instrumentation.EndSpan(span, err)
	}()

	meta := &drive.File{Name: u.Name, Description: u.Description, MimeType: u.MimeType}
	if u.FolderID != "" {
		meta.Parents = []string{u.FolderID}
	}
	if !u.ModifiedAt.IsZero() {
		meta.ModifiedTime = u.ModifiedAt.UTC().Format(time.RFC3339)
	}

	created, err := c.files.Create(meta).
		Context(ctx).
		Media(u.Body, googleapi.ContentType(u.MimeType)).
		Fields(fileFields).
		Do()
	if err != nil {
		return nil, google.ClassifyError("drive.upload", err)
	}
	return fromAPI(created), nil
}

func fromAPI(df *drive.File) *File {
	f := &File{
		ID:       df.Id,
		Name:     df.Name,
		MimeType: df.MimeType,
		Size:     df.Size,
		Link:     df.WebViewLink,
		Folders:  df.Parents,
	}
	// Unparsable timestamps stay zero.
	f.CreatedAt, _ = time.Parse(time.RFC3339, df.CreatedTime)
	f.ModifiedAt, _ = time.Parse(time.RFC3339, df.ModifiedTime)
	return f
}
