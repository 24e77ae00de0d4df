package capabilities

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
)

// Individual capability calls are bounded so a stuck remote cannot hold the
// invocation past its own timeout for long.
const fetchCallTimeout = 20 * time.Second

// newFetchHandle exposes an outbound HTTP client to tasks declaring "fetch".
func newFetchHandle() Handle {
	cli, err := client.NewClient(
		client.WithDialTimeout(10 * time.Second),
	)
	if err != nil {
		log.Printf("capability fetch: client init failed: %v", err)
		return unavailable(CapabilityFetch, "http client initialization failed", "get", "post", "request")
	}

	doRequest := func(method, url string, body interface{}, headers map[string]interface{}) (map[string]interface{}, error) {
		req := &protocol.Request{}
		res := &protocol.Response{}
		req.SetMethod(method)
		req.SetRequestURI(url)
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("fetch: cannot encode request body: %w", err)
			}
			req.SetBody(raw)
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
		ctx, cancel := context.WithTimeout(context.Background(), fetchCallTimeout)
		defer cancel()
		if err := cli.Do(ctx, req, res); err != nil {
			return nil, fmt.Errorf("fetch %s %s: %w", method, url, err)
		}
		return map[string]interface{}{
			"status": res.StatusCode(),
			"body":   string(res.Body()),
		}, nil
	}

	return Handle{
		"get": func(url string) (map[string]interface{}, error) {
			return doRequest("GET", url, nil, nil)
		},
		"post": func(url string, body interface{}) (map[string]interface{}, error) {
			return doRequest("POST", url, body, nil)
		},
		"request": func(opts map[string]interface{}) (map[string]interface{}, error) {
			method, _ := opts["method"].(string)
			if method == "" {
				method = "GET"
			}
			url, _ := opts["url"].(string)
			if url == "" {
				return nil, fmt.Errorf("fetch: request requires a url")
			}
			headers, _ := opts["headers"].(map[string]interface{})
			return doRequest(method, url, opts["body"], headers)
		},
	}
}
