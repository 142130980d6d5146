// Package google manages the OAuth2 tokens used for the Gmail source and the
// Drive destination.
//
// Tokens are stored per account as JSON files under the user cache directory
// (or GISTFLOW_TOKEN_DIR). The OAuth client credentials come from
// GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET. Authorization uses the manual
// copy-paste flow: print the URL with GetAuthURLForAccount, then exchange the
// code with SaveTokenForAccount.
package google
