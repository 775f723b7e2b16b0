// Package file reads the credential files handed to eventsync.
package file

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/eventsync/internal"
)

// ReadClientSecret returns the OAuth client definition downloaded from the
// Google console. An empty path yields nil, which makes the client use
// tokens as they are without refreshing them.
func ReadClientSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file: reading client secret: %w", err)
	}
	return b, nil
}

// ReadToken reads an oauth2.Token serialized as JSON.
func ReadToken(path string) (internal.Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return internal.Credentials{}, fmt.Errorf("file: reading token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return internal.Credentials{}, fmt.Errorf("file: decoding token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return internal.Credentials{}, fmt.Errorf("file: token %s has neither access nor refresh token", path)
	}
	return internal.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}
