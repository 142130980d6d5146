package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/gistflow/internal/gist"
)

// Environment variables read by CredentialsFromEnv and DefaultTokenDir.
const (
	ClientIDEnv     = "GOOGLE_CLIENT_ID"
	ClientSecretEnv = "GOOGLE_CLIENT_SECRET"
	TokenDirEnv     = "GISTFLOW_TOKEN_DIR"

	// DefaultAccount is used when no account name is configured.
	DefaultAccount = "default"

	oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"
)

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Credentials are the OAuth client credentials of the installed app.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// CredentialsFromEnv reads the client credentials from the environment.
func CredentialsFromEnv() Credentials {
	return Credentials{
		ClientID:     os.Getenv(ClientIDEnv),
		ClientSecret: os.Getenv(ClientSecretEnv),
	}
}

// HTTPClientProvider returns an authenticated client for an account.
type HTTPClientProvider interface {
	GetHTTPClientForAccount(ctx context.Context, account string) (*http.Client, error)
}

// TokenStore keeps one token file per account.
type TokenStore struct {
	dir  string
	conf *oauth2.Config
}

// NewTokenStore returns a store rooted at dir, DefaultTokenDir when empty.
func NewTokenStore(dir string, creds Credentials) *TokenStore {
	if dir == "" {
		dir = DefaultTokenDir()
	}
	redirect := creds.RedirectURL
	if redirect == "" {
		redirect = oobRedirectURL
	}
	return &TokenStore{
		dir: dir,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect,
			Scopes:       DefaultOAuthScopes,
		},
	}
}

// DefaultTokenDir is $GISTFLOW_TOKEN_DIR or <user cache dir>/gistflow.
func DefaultTokenDir() string {
	if dir := os.Getenv(TokenDirEnv); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "gistflow")
}

func validateAccountName(account string) error {
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: use letters, digits, '-' or '_'", account)
	}
	return nil
}

func (s *TokenStore) tokenFilePath(account string) string {
	return filepath.Join(s.dir, "google-"+account+".token")
}

// HasTokenForAccount reports whether a token file exists for account.
func (s *TokenStore) HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(s.tokenFilePath(account))
	return err == nil
}

// GetAuthURLForAccount returns the consent URL. The account is passed as state.
func (s *TokenStore) GetAuthURLForAccount(account string) string {
	return s.conf.AuthCodeURL(account, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// SaveTokenForAccount exchanges an authorization code and stores the token.
func (s *TokenStore) SaveTokenForAccount(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if err := s.checkCredentials(); err != nil {
		return err
	}
	token, err := s.conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return s.writeToken(account, token)
}

func (s *TokenStore) writeToken(account string, token *oauth2.Token) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.tokenFilePath(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *TokenStore) readToken(account string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.tokenFilePath(account))
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file for account %s: %w", account, err)
	}
	return &token, nil
}

func (s *TokenStore) checkCredentials() error {
	if s.conf.ClientID == "" || s.conf.ClientSecret == "" {
		return gist.Configuration("google.oauth",
			fmt.Errorf("%s and %s must be set", ClientIDEnv, ClientSecretEnv))
	}
	return nil
}

// GetTokenSourceForAccount returns a refreshing token source for account.
func (s *TokenStore) GetTokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if err := validateAccountName(account); err != nil {
		return nil, gist.Configuration("google.oauth", err)
	}
	if err := s.checkCredentials(); err != nil {
		return nil, err
	}
	token, err := s.readToken(account)
	if errors.Is(err, os.ErrNotExist) {
		return nil, gist.Configuration("google.oauth", errors.New(GetAuthenticationErrorMessage(account)))
	}
	if err != nil {
		return nil, gist.Configuration("google.oauth", err)
	}
	return s.conf.TokenSource(ctx, token), nil
}

// GetHTTPClientForAccount returns an HTTP client authorized for account.
func (s *TokenStore) GetHTTPClientForAccount(ctx context.Context, account string) (*http.Client, error) {
	ts, err := s.GetTokenSourceForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// GetAuthenticationErrorMessage tells the user how to authorize account.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("no Google OAuth token for account %q: run 'gistflow auth url --account %s' "+
		"and then 'gistflow auth save --account %s <code>'", account, account, account)
}
