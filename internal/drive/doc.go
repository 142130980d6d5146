// Package drive uploads rendered gists to a Google Drive folder.
//
// The client is bound to one account and authenticates through the google
// package's token store. Only the drive.file scope is used, so the app sees
// the files it created and nothing else.
package drive
