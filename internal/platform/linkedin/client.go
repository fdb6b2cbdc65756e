package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/oauth2"

	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/pkg/logger"
)

const (
	defaultBaseURL  = "https://api.linkedin.com"
	restliVersion   = "2.0.0"
	linkedinVersion = "202401" // LinkedIn API version
)

// LinkedIn content limits
const maxCommentaryLength = 3000

// Config holds the LinkedIn publisher settings
type Config struct {
	AccessToken string
	AuthorURN   string // urn:li:person:xxx; resolved from /v2/userinfo when empty
	BaseURL     string
	Timeout     time.Duration
}

// Client publishes text posts through the LinkedIn REST Posts API
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger

	mu        sync.Mutex
	authorURN string
}

// NewClient creates a LinkedIn publisher that authenticates with a pre-issued bearer token
func NewClient(cfg Config, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authorURN:  cfg.AuthorURN,
		log:        log.WithComponent("linkedin"),
	}
}

// do performs an HTTP request with the required LinkedIn headers
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	req.Header.Set("LinkedIn-Version", linkedinVersion)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making LinkedIn API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", platform.ErrPublishFailure, err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Msg("LinkedIn API response")

	return resp, nil
}

// Profile represents the authenticated member returned by /v2/userinfo
type Profile struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

func (c *Client) author(ctx context.Context) (string, error) {
	c.mu.Lock()
	urn := c.authorURN
	c.mu.Unlock()
	if urn != "" {
		return urn, nil
	}

	resp, err := c.do(ctx, http.MethodGet, "/v2/userinfo", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to get profile: %w", platform.StatusError(resp.StatusCode, string(body)))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("%w: failed to decode profile: %v", platform.ErrPublishFailure, err)
	}

	urn = fmt.Sprintf("urn:li:person:%s", profile.Sub)
	c.mu.Lock()
	c.authorURN = urn
	c.mu.Unlock()
	return urn, nil
}

// PostRequest represents the LinkedIn Posts API request body
type PostRequest struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              Distribution `json:"distribution"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

// Distribution represents post distribution settings
type Distribution struct {
	FeedDistribution               string        `json:"feedDistribution"`
	TargetEntities                 []interface{} `json:"targetEntities"`
	ThirdPartyDistributionChannels []interface{} `json:"thirdPartyDistributionChannels"`
}

// Publish creates a text post from the payload's "text" field, or its reference when absent
func (c *Client) Publish(ctx context.Context, req platform.Request) (platform.Receipt, error) {
	author, err := c.author(ctx)
	if err != nil {
		return platform.Receipt{}, err
	}

	text, _ := req.Payload.Data["text"].(string)
	if text == "" {
		text = req.Payload.Ref
	}
	commentary := sanitize(text)
	if commentary == "" {
		return platform.Receipt{}, platform.Rejected(fmt.Errorf("empty commentary for occurrence %s", req.OccurrenceID))
	}
	if len(commentary) > maxCommentaryLength {
		c.log.Warn().
			Int("original_length", len(commentary)).
			Int("max_length", maxCommentaryLength).
			Msg("Content exceeds LinkedIn limit, truncating")
		commentary = commentary[:maxCommentaryLength-3] + "..."
	}

	postReq := PostRequest{
		Author:     author,
		Commentary: commentary,
		Visibility: "PUBLIC",
		Distribution: Distribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []interface{}{},
			ThirdPartyDistributionChannels: []interface{}{},
		},
		LifecycleState: "PUBLISHED",
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/posts", postReq)
	if err != nil {
		return platform.Receipt{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Str("occurrence_id", req.OccurrenceID).
			Msg("Failed to create post")
		if err := platform.StatusError(resp.StatusCode, string(body)); err != nil {
			return platform.Receipt{}, err
		}
		return platform.Receipt{}, fmt.Errorf("%w: unexpected status %d", platform.ErrPublishFailure, resp.StatusCode)
	}

	postURN := resp.Header.Get("x-restli-id")
	if postURN == "" {
		postURN = resp.Header.Get("Location")
	}

	c.log.Info().
		Str("post_urn", postURN).
		Str("occurrence_id", req.OccurrenceID).
		Msg("Post created successfully")

	return platform.Receipt{ExternalPostID: postURN}, nil
}

var replacer = strings.NewReplacer(
	"━", "-", "─", "-", "═", "=", "│", "|", "║", "|",
	"•", "-", "◦", "-", "▪", "-", "►", ">", "◄", "<",
	"→", "->", "←", "<-", "⇒", "=>", "✓", "[x]", "✅", "[ok]",
	"\u00A0", " ", "\u2003", " ", "\u2002", " ", "\u2009", " ",
	"\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "",
)

// sanitize cleans content so the LinkedIn API accepts it
func sanitize(content string) string {
	content = replacer.Replace(content)

	var result strings.Builder
	result.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\r' || r == '\t' || (unicode.IsPrint(r) && r < 0x10000) {
			result.WriteRune(r)
		}
	}

	content = strings.ReplaceAll(result.String(), "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(content)
}

var _ platform.Publisher = (*Client)(nil)
