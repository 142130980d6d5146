package google

import (
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are the scopes requested during authorization:
// reading and relabeling mail, and writing the files the app creates in Drive.
var DefaultOAuthScopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailLabelsScope,
	drive.DriveFileScope,
}
