package distributor

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/teemow/gistflow/internal/drive"
	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/retry"
)

const markdownMimeType = "text/markdown"

// DriveUploader is the part of the Drive client the destination uses.
type DriveUploader interface {
	Create(ctx context.Context, u drive.Upload) (*drive.File, error)
}

// DriveDestination uploads the markdown rendering into a Drive folder.
type DriveDestination struct {
	uploader DriveUploader
	folderID string
	policy   retry.Policy
	now      func() time.Time
}

// NewDriveDestination returns a destination uploading into folderID.
func NewDriveDestination(uploader DriveUploader, folderID string, policy retry.Policy) (*DriveDestination, error) {
	if folderID == "" {
		return nil, gist.Configuration("drive", errors.New("folder id is required"))
	}
	return &DriveDestination{uploader: uploader, folderID: folderID, policy: policy, now: time.Now}, nil
}

// Kind implements Destination.
func (d *DriveDestination) Kind() gist.DestinationKind {
	return gist.DestinationDrive
}

// Publish uploads the file and returns its web link, or its id when Drive
// returns no link.
func (d *DriveDestination) Publish(ctx context.Context, rec gist.Record) (string, error) {
	now := d.now()
	data, err := RenderMarkdown(rec, now)
	if err != nil {
		return "", err
	}
	name := Filename(rec, FormatMarkdown, now)

	// Each attempt gets a fresh reader over the same bytes.
	file, err := retry.Value(ctx, d.policy, "drive.upload", func() (*drive.File, error) {
		return d.uploader.Create(ctx, drive.Upload{
			Name:        name,
			Body:        bytes.NewReader(data),
			MimeType:    markdownMimeType,
			FolderID:    d.folderID,
			Description: rec.Summary,
			ModifiedAt:  now,
		})
	})
	if err != nil {
		return "", err
	}
	if file.Link != "" {
		return file.Link, nil
	}
	return file.ID, nil
}
