// Package facebook talks to the Facebook Graph API: OAuth code exchange,
// profile lookup, and single-page fetches of friends, posts and photos.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	friendsPageLimit = 500
	postsPageLimit   = 100
	photosPageLimit  = 100

	maxDownloadBytes = 32 << 20
)

// Profile is the subset of the Graph API profile the server uses.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Friend is one entry of the friends list.
type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostItem is one entry of the posts feed.
type PostItem struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	FullPicture string `json:"full_picture"`
}

// PhotoItem is one uploaded photo with an optional caption.
type PhotoItem struct {
	ID      string `json:"id"`
	Caption string `json:"name"`
	Source  string `json:"source"`
}

// Token is the result of an OAuth code exchange.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// API is the surface the import pipeline and OAuth handlers depend on.
type API interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	Profile(ctx context.Context, accessToken string) (*Profile, error)
	Friends(ctx context.Context, accessToken string) ([]Friend, error)
	Posts(ctx context.Context, accessToken string) ([]PostItem, error)
	Photos(ctx context.Context, accessToken string) ([]PhotoItem, error)
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Client is an API implementation over HTTP with a client-side rate limit so
// background imports stay well under Graph API quotas.
type Client struct {
	appID       string
	appSecret   string
	redirectURL string
	apiBase     string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Graph API client. apiBase is overridable so tests can
// point it at a local server.
func NewClient(appID, appSecret, redirectURL, apiBase string) *Client {
	return &Client{
		appID:       appID,
		appSecret:   appSecret,
		redirectURL: redirectURL,
		apiBase:     apiBase,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
	}
}

// AuthURL returns the dialog URL the browser is redirected to, carrying the
// CSRF state token.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.appID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("state", state)
	q.Set("scope", "email,user_friends,user_posts,user_photos")
	return "https://www.facebook.com/v12.0/dialog/oauth?" + q.Encode()
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	q := url.Values{}
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("code", code)

	var token Token
	if err := c.getJSON(ctx, c.apiBase+"/oauth/access_token?"+q.Encode(), &token); err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return &token, nil
}

func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, c.endpoint("/me", accessToken, url.Values{"fields": {"id,name,email"}}), &profile); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) Friends(ctx context.Context, accessToken string) ([]Friend, error) {
	var page struct {
		Data []Friend `json:"data"`
	}
	q := url.Values{"limit": {fmt.Sprint(friendsPageLimit)}}
	if err := c.getJSON(ctx, c.endpoint("/me/friends", accessToken, q), &page); err != nil {
		return nil, fmt.Errorf("fetching friends: %w", err)
	}
	return page.Data, nil
}

func (c *Client) Posts(ctx context.Context, accessToken string) ([]PostItem, error) {
	var page struct {
		Data []PostItem `json:"data"`
	}
	q := url.Values{
		"fields": {"id,message,full_picture"},
		"limit":  {fmt.Sprint(postsPageLimit)},
	}
	if err := c.getJSON(ctx, c.endpoint("/me/posts", accessToken, q), &page); err != nil {
		return nil, fmt.Errorf("fetching posts: %w", err)
	}
	return page.Data, nil
}

func (c *Client) Photos(ctx context.Context, accessToken string) ([]PhotoItem, error) {
	var page struct {
		Data []PhotoItem `json:"data"`
	}
	q := url.Values{
		"type":   {"uploaded"},
		"fields": {"id,name,source"},
		"limit":  {fmt.Sprint(photosPageLimit)},
	}
	if err := c.getJSON(ctx, c.endpoint("/me/photos", accessToken, q), &page); err != nil {
		return nil, fmt.Errorf("fetching photos: %w", err)
	}
	return page.Data, nil
}

// Download fetches raw media bytes and returns them with the response
// content type.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) endpoint(path, accessToken string, q url.Values) string {
	q.Set("access_token", accessToken)
	return c.apiBase + path + "?" + q.Encode()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
