package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiClient talks to the fileportal HTTP API. The cookie jar carries the
// session cookie, so the server keeps handing back the same generated
// username across calls.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) (*apiClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}, nil
}

func (c *apiClient) CreateRoom() (createRoomResponse, error) {
	var resp createRoomResponse
	err := c.doJSON(http.MethodPost, "/api/rooms", nil, &resp)
	return resp, err
}

func (c *apiClient) Join(code string) (roomResponse, error) {
	var resp roomResponse
	err := c.doJSON(http.MethodPost, "/api/rooms/"+url.PathEscape(code)+"/join", nil, &resp)
	return resp, err
}

func (c *apiClient) Snapshot(code string) (roomResponse, error) {
	var resp roomResponse
	err := c.doJSON(http.MethodGet, "/api/rooms/"+url.PathEscape(code), nil, &resp)
	return resp, err
}

func (c *apiClient) Destroy(code string) error {
	return c.doJSON(http.MethodDelete, "/api/rooms/"+url.PathEscape(code), nil, nil)
}

// Upload sends one local file into the room.
func (c *apiClient) Upload(code, path string) (uploadResponse, error) {
	var resp uploadResponse

	file, err := os.Open(path)
	if err != nil {
		return resp, err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return resp, err
	}
	if err := writer.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/rooms/"+url.PathEscape(code)+"/files", body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, fmt.Errorf("server returned %d: %s", httpResp.StatusCode, readResponseError(httpResp.Body))
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// Download fetches the file at index into destDir and returns the saved path.
func (c *apiClient) Download(code string, index int, destDir string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/rooms/%s/files/%d", c.baseURL, url.PathEscape(code), index)
	resp, err := c.http.Get(endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}

	name := fmt.Sprintf("file-%d", index)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if fn := params["filename"]; fn != "" {
			name = filepath.Base(fn)
		}
	}
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *apiClient) doJSON(method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// watchURL converts the HTTP base into the websocket watch endpoint.
func (c *apiClient) watchURL(code string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = "/watch"
	query := parsed.Query()
	query.Set("room", code)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
