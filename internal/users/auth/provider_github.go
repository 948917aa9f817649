// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHubOptions configures [GitHubProvider]. Endpoint and APIBaseURL default
// to github.com and are only overridden in tests.
type GitHubOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
	APIBaseURL   string
}

// GitHubProvider runs the OAuth authorization-code flow against GitHub and
// maps the user to a [FederatedProfile].
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL string
}

// NewGitHubProvider creates a new GitHubProvider.
func NewGitHubProvider(options GitHubOptions) *GitHubProvider {
	endpoint := options.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}

	apiBaseURL := options.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = githubAPIBaseURL
	}

	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     options.ClientID,
			ClientSecret: options.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  options.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
	}
}

// AuthCodeURL returns the GitHub consent URL carrying the CSRF state.
func (provider *GitHubProvider) AuthCodeURL(state string) string {
	return provider.config.AuthCodeURL(state)
}

/*
Exchange trades an authorization code for the user's profile.

Description: The name falls back to the login. When the public profile has
no email, the primary verified address from /user/emails is used.

Parameters:
  - context: context.Context
  - code: string

Returns:
  - FederatedProfile: The asserted profile
  - error: Exchange or API failures
*/
func (provider *GitHubProvider) Exchange(context context.Context, code string) (FederatedProfile, error) {
	token, err := provider.config.Exchange(context, code)
	if err != nil {
		return FederatedProfile{}, fmt.Errorf("github_exchange_failed: %w", err)
	}

	client := provider.config.Client(context, token)

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := provider.getJSON(context, client, "/user", &user); err != nil {
		return FederatedProfile{}, err
	}

	email := user.Email
	if email == "" {
		email, err = provider.primaryEmail(context, client)
		if err != nil {
			return FederatedProfile{}, err
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return FederatedProfile{
		ExternalID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
		Username:   user.Login,
		AvatarURL:  user.AvatarURL,
	}, nil
}

// primaryEmail returns the primary verified address, or "" when there is none.
func (provider *GitHubProvider) primaryEmail(context context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := provider.getJSON(context, client, "/user/emails", &emails); err != nil {
		return "", err
	}

	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return entry.Email, nil
		}
	}
	return "", nil
}

func (provider *GitHubProvider) getJSON(context context.Context, client *http.Client, path string, target any) error {
	request, err := http.NewRequestWithContext(context, http.MethodGet, provider.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github_request_build_failed: %w", err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("github_request_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("github_api_status: %s returned %d", path, response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("github_decode_failed: %w", err)
	}
	return nil
}
