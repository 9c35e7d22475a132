package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Scopes requested from Google. Reads only.
var Scopes = []string{gdrive.DriveReadonlyScope}

type credentialsType struct {
	Type string `json:"type"`
}

// ClientOptions turns the credentials file (and, for OAuth clients, the
// stored token) into Drive client options. Service account keys need no token.
func ClientOptions(ctx context.Context, credentialsPath, tokenPath string) ([]option.ClientOption, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", credentialsPath, err)
	}

	var kind credentialsType
	_ = json.Unmarshal(raw, &kind)
	if kind.Type == "service_account" {
		jwt, err := google.JWTConfigFromJSON(raw, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse service account: %w", err)
		}
		return []option.ClientOption{option.WithTokenSource(jwt.TokenSource(ctx))}, nil
	}

	cfg, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("no usable token at %s (run `driveagent auth`): %w", tokenPath, err)
	}
	return []option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx, tok))}, nil
}

// LoadToken reads an OAuth token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// SaveToken stores tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// Authorize runs the installed-app consent flow. prompt shows the consent URL
// and returns the code the user pasted back.
func Authorize(ctx context.Context, credentialsPath, tokenPath string, prompt func(url string) (string, error)) error {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return fmt.Errorf("read credentials %s: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return fmt.Errorf("parse oauth client: %w", err)
	}

	url := cfg.AuthCodeURL("driveagent", oauth2.AccessTypeOffline)
	code, err := prompt(url)
	if err != nil {
		return err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}
	return SaveToken(tokenPath, tok)
}
