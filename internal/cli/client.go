package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var adminHTTPClient = &http.Client{Timeout: 10 * time.Second}

// postURL POSTs a "url" form value to the admin daemon's path and
// returns an error describing any non-2xx response.
func postURL(admin, path, tunnelURL string) error {
	resp, err := adminHTTPClient.PostForm(admin+path, url.Values{"url": {tunnelURL}})
	if err != nil {
		return fmt.Errorf("reach admin daemon at %s: %w", admin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, body)
	}
	return nil
}
