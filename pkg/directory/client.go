package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/platinummonkey/plantops/pkg/auth"
)

// maxPages bounds how many nextLink hops one listing may follow
const maxPages = 1000

// ClientConfig configures the Graph-style directory client
type ClientConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Client lists group members from a Graph-style REST directory
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client that authenticates with an app-only
// client-credentials token. ctx scopes the token source.
func NewClient(ctx context.Context, cfg ClientConfig) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	httpClient := cc.Client(ctx)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return NewClientWithHTTP(cfg.BaseURL, httpClient)
}

// NewClientWithHTTP creates a client using an already authenticated http.Client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type graphMember struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

type graphPage struct {
	Value    []graphMember `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// GroupMembers returns every user member of groupID, following nextLink
// paging. Nested groups and devices are skipped.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]auth.DirectoryMember, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	next := fmt.Sprintf("%s/groups/%s/members?$select=id,mail,userPrincipalName,displayName",
		c.baseURL, url.PathEscape(groupID))

	var members []auth.DirectoryMember
	for pages := 0; next != ""; pages++ {
		if pages >= maxPages {
			return nil, fmt.Errorf("group %s: more than %d pages", groupID, maxPages)
		}
		page, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, m := range page.Value {
			if m.ODataType != "" && m.ODataType != "#microsoft.graph.user" {
				continue
			}
			email := m.Mail
			if email == "" {
				email = m.UserPrincipalName
			}
			members = append(members, auth.DirectoryMember{
				ObjectID:    m.ID,
				Email:       email,
				DisplayName: m.DisplayName,
			})
		}
		if page.NextLink != "" && !c.sameOrigin(page.NextLink) {
			return nil, fmt.Errorf("group %s: next link %q leaves the directory host", groupID, page.NextLink)
		}
		next = page.NextLink
	}
	return members, nil
}

// sameOrigin reports whether link shares the scheme and host of the base URL.
// The http client attaches the app token to every request it sends.
func (c *Client) sameOrigin(link string) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("group members request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode group members: %w", err)
	}
	return &page, nil
}
