package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
)

// Client connects to a running meshnoded daemon via its Unix socket.
type Client struct {
	httpClient *http.Client
	socketPath string
	authToken  string
}

// NewClient creates a new daemon client. It reads the auth cookie
// automatically from the cookie file next to the socket.
func NewClient(socketPath, cookiePath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDaemonNotRunning, socketPath)
	}

	token, err := os.ReadFile(cookiePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon cookie: %w", err)
	}

	c := &Client{
		socketPath: socketPath,
		authToken:  strings.TrimSpace(string(token)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
	return c, nil
}

func (c *Client) do(method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequest(method, "http://daemon"+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// doJSON sends a request and decodes the JSON {"data": ...} envelope
// into target.
func (c *Client) doJSON(method, path string, body io.Reader, target any) error {
	data, status, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("daemon: %s", errResp.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", status)
	}
	if target != nil {
		var raw struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if err := json.Unmarshal(raw.Data, target); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// --- Query methods ---

func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON("GET", "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Sessions() ([]SessionInfo, error) {
	var resp SessionsResponse
	if err := c.doJSON("GET", "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) SeedsFor(rid string) (*SeedsForResponse, error) {
	var resp SeedsForResponse
	if err := c.doJSON("GET", "/v1/seeds/"+rid, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SyncStatus(rid string) (*SyncStatusResponse, error) {
	var resp SyncStatusResponse
	if err := c.doJSON("GET", "/v1/sync-status/"+rid, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Config() (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.doJSON("GET", "/v1/config", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --- Mutation methods ---

func (c *Client) Connect(req ConnectRequest) error {
	body, _ := json.Marshal(req)
	return c.doJSON("POST", "/v1/connect", strings.NewReader(string(body)), nil)
}

func (c *Client) Disconnect(id string) error {
	return c.doJSON("DELETE", "/v1/sessions/"+id, nil, nil)
}

func (c *Client) Fetch(req FetchRequest) (*FetchResponse, error) {
	body, _ := json.Marshal(req)
	var resp FetchResponse
	if err := c.doJSON("POST", "/v1/fetch", strings.NewReader(string(body)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Seed(req SeedRequest) error {
	body, _ := json.Marshal(req)
	return c.doJSON("POST", "/v1/seeds", strings.NewReader(string(body)), nil)
}

func (c *Client) Unseed(rid string) error {
	return c.doJSON("DELETE", "/v1/seeds/"+rid, nil, nil)
}

func (c *Client) Follow(req FollowRequest) error {
	body, _ := json.Marshal(req)
	return c.doJSON("POST", "/v1/following", strings.NewReader(string(body)), nil)
}

func (c *Client) Unfollow(id string) error {
	return c.doJSON("DELETE", "/v1/following/"+id, nil, nil)
}

func (c *Client) AnnounceRefs(rid string) (*AnnounceRefsResponse, error) {
	var resp AnnounceRefsResponse
	if err := c.doJSON("POST", "/v1/refs/"+rid+"/announce", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AnnounceInventory() error {
	return c.doJSON("POST", "/v1/inventory/announce", nil, nil)
}

func (c *Client) SyncInventory() (*SyncInventoryResponse, error) {
	var resp SyncInventoryResponse
	if err := c.doJSON("POST", "/v1/inventory/sync", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Shutdown() error {
	return c.doJSON("POST", "/v1/shutdown", nil, nil)
}
