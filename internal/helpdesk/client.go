package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// Client talks to the helpdesk REST API. All methods wrap transport and
// non-2xx failures in ErrAPIFailure so callers can degrade uniformly.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL, token string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With(slog.String("service", "helpdesk")),
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base url: %v", ErrAPIFailure, err)
	}
	base.Path = path.Join(base.Path, endpoint)
	if len(query) > 0 {
		base.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("helpdesk api error",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrAPIFailure, method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAPIFailure, err)
	}
	return nil
}

// SearchCases returns all cases whose requester matches the given proxy
// identity address, newest update first.
func (c *Client) SearchCases(ctx context.Context, identityAddress string) ([]Case, error) {
	q := url.Values{}
	q.Set("requester", identityAddress)

	var cases []Case
	if err := c.do(ctx, http.MethodGet, "/api/v1/cases/search", q, nil, &cases); err != nil {
		return nil, err
	}
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].UpdatedAt.After(cases[j].UpdatedAt)
	})
	return cases, nil
}

// MostRecentOpenCase finds the latest non-closed case for an identity
// address, or "" when the requester has no open case.
func (c *Client) MostRecentOpenCase(ctx context.Context, identityAddress string) (string, error) {
	cases, err := c.SearchCases(ctx, identityAddress)
	if err != nil {
		return "", err
	}
	for _, cs := range cases {
		if closedState(cs.State) {
			continue
		}
		return cs.ID, nil
	}
	return "", nil
}

func closedState(state string) bool {
	switch strings.ToLower(state) {
	case "closed", "resolved", "merged", "removed":
		return true
	}
	return false
}

// FindOrCreateUser looks a requester up by proxy email and creates the
// record when it does not exist yet.
func (c *Client) FindOrCreateUser(ctx context.Context, email, displayName string) (*User, error) {
	q := url.Values{}
	q.Set("email", email)

	var found []User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/search", q, nil, &found); err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	first, last := splitName(displayName)
	payload := map[string]any{
		"email":     email,
		"firstname": first,
		"lastname":  last,
	}
	var created User
	if err := c.do(ctx, http.MethodPost, "/api/v1/users", nil, payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("created helpdesk user", slog.String("email", email))
	return &created, nil
}

func splitName(displayName string) (first, last string) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "", ""
	}
	parts := strings.SplitN(displayName, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// CreateCase opens a new case with an initial article attributed to the
// requester and returns the new case id.
func (c *Client) CreateCase(ctx context.Context, subject, requesterAddress, requesterName, body string) (string, error) {
	user, err := c.FindOrCreateUser(ctx, requesterAddress, requesterName)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"title":     subject,
		"requester": user.ID,
		"state":     "new",
		"article": map[string]any{
			"body":   body,
			"type":   string(ChannelMessenger),
			"sender": "Customer",
		},
	}
	var created Case
	if err := c.do(ctx, http.MethodPost, "/api/v1/cases", nil, payload, &created); err != nil {
		return "", err
	}
	c.logger.Info("created helpdesk case",
		slog.String("case_id", created.ID),
		slog.String("requester", requesterAddress))
	return created.ID, nil
}

// AppendMessage adds an article to an existing case.
func (c *Client) AppendMessage(ctx context.Context, art Article) error {
	sender := "Agent"
	if art.Attribution == AttributeRequester {
		sender = "Customer"
	}
	payload := map[string]any{
		"case_id":  art.CaseID,
		"body":     art.Body,
		"type":     string(art.Channel),
		"sender":   sender,
		"internal": art.Internal || art.Channel == ChannelNote,
	}
	endpoint := path.Join("/api/v1/cases", art.CaseID, "articles")
	if err := c.do(ctx, http.MethodPost, endpoint, nil, payload, nil); err != nil {
		return err
	}
	return nil
}
