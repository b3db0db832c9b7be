package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"comlinepm/internal/shared"
	"comlinepm/internal/types"
)

const githubMethodName = "github"

type githubUser struct {
	Login string `json:"login"`
}

// githubMethod validates a PAT against the GitHub API. The session is bound
// to target: the token owner itself, or an organization the owner belongs
// to.
func githubMethod(client *http.Client, apiURL string) Method {
	return Method{
		Name:        githubMethodName,
		Description: "Github Authentication with a Personal Access Token (PAT)",
		Login: func(ctx context.Context, req types.LoginRequest) (types.Session, error) {
			pat := strings.TrimSpace(req.Credential.Secret.Reveal())
			if pat == "" {
				return types.Session{}, &types.AuthError{
					Kind:   types.ErrAuthMissingCredential,
					Method: githubMethodName,
					Target: req.Target,
					Err:    fmt.Errorf("github authentication requires a personal access token"),
				}
			}
			gh := githubClient{client: client, apiURL: apiURL, token: pat}
			user, expiresAt, err := gh.user(ctx)
			if err != nil {
				return types.Session{}, err
			}
			target := strings.TrimSpace(req.Target)
			if target != "" && !strings.EqualFold(target, user.Login) {
				if err := gh.requireMembership(ctx, target, user.Login); err != nil {
					return types.Session{}, err
				}
			}
			subject := user.Login
			if target != "" {
				subject = target
			}
			return types.Session{Subject: subject, Token: types.Secret(pat), ExpiresAt: expiresAt}, nil
		},
	}
}

type githubClient struct {
	client *http.Client
	apiURL string
	token  string
}

func (g githubClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return g.client.Do(req)
}

func (g githubClient) user(ctx context.Context) (githubUser, time.Time, error) {
	resp, err := g.get(ctx, "/user")
	if err != nil {
		return githubUser{}, time.Time{}, fmt.Errorf("github user lookup: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return githubUser{}, time.Time{}, fmt.Errorf("github rejected token: %w", shared.HTTPStatusError(resp.StatusCode, g.apiURL+"/user", body))
	}
	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return githubUser{}, time.Time{}, fmt.Errorf("decode github user: %w", err)
	}
	if user.Login == "" {
		return githubUser{}, time.Time{}, fmt.Errorf("github user response has no login")
	}
	return user, shared.ParseTimeFlexible(resp.Header.Get("GitHub-Authentication-Token-Expiration")), nil
}

func (g githubClient) requireMembership(ctx context.Context, org string, login string) error {
	path := fmt.Sprintf("/orgs/%s/members/%s", url.PathEscape(org), url.PathEscape(login))
	resp, err := g.get(ctx, path)
	if err != nil {
		return fmt.Errorf("github membership check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return fmt.Errorf("%s is not a member of %s (status=%d)", login, org, resp.StatusCode)
}
