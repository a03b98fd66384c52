package oracle

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
)

// Dial opens the persistent authenticated connection and starts a Client
// over it. The key travels as a bearer token on the upgrade request. When the
// server rejects the upgrade with a response body (bad key, quota), that body
// becomes the error text.
func Dial(endpoint, key string, cfg Config) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if readErr == nil && len(bytes.TrimSpace(body)) > 0 {
				return nil, fmt.Errorf("oracle: dial %s: %s", endpoint, bytes.TrimSpace(body))
			}
		}
		return nil, fmt.Errorf("oracle: dial %s: %w", endpoint, err)
	}
	return NewClient(conn, cfg), nil
}
