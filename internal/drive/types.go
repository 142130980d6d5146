package drive

import (
	"io"
	"time"
)

// Upload describes one file to create.
type Upload struct {
	Name string
	Body io.Reader
	// MimeType defaults to whatever Drive sniffs from Body when empty.
	MimeType    string
	FolderID    string
	Description string
	ModifiedAt  time.Time
}

// File is the metadata Drive returns for a created file.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size,omitempty"`
	Link       string    `json:"webViewLink,omitempty"`
	Folders    []string  `json:"parents,omitempty"`
	CreatedAt  time.Time `json:"createdTime"`
	ModifiedAt time.Time `json:"modifiedTime"`
}
