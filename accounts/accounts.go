package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// Manager resolves account names to authenticated HTTP clients. Refresh
// tokens are stored per account in a JSON file; the OAuth app credentials
// come from the environment and are shared by all accounts.
type Manager struct {
	conf   *oauth2.Config
	tokens map[string]string
}

// Load reads the accounts file, a JSON object mapping account name to
// refresh token, and the OAuth app credentials from the environment.
func Load(path string) (*Manager, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	log.Printf("[accounts] Loaded %d account(s) from %s", len(tokens), path)

	return &Manager{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
		},
		tokens: tokens,
	}, nil
}

// Credentials returns an HTTP client whose requests carry a self-refreshing
// access token for the named account, or nil when the account is unknown.
func (m *Manager) Credentials(ctx context.Context, name string) *http.Client {
	refresh, ok := m.tokens[name]
	if !ok || refresh == "" {
		return nil
	}
	token := &oauth2.Token{
		RefreshToken: refresh,
		Expiry:       time.Now().Add(-time.Hour), // force refresh on first use
	}
	return oauth2.NewClient(ctx, m.conf.TokenSource(ctx, token))
}

// Names lists the configured account names.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.tokens))
	for name := range m.tokens {
		names = append(names, name)
	}
	return names
}
