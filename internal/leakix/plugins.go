package leakix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/leakctl/leakctl/internal/metrics"
)

// Plugins lists the plugin names the API knows, in server order. The
// answer is cached like any other payload.
func (c *Client) Plugins(ctx context.Context) ([]string, error) {
	payload, cached, err := c.fetchJSON(ctx, "/api/plugins", nil, false)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("plugins", "error").Inc()
		return nil, err
	}
	if !cached {
		metrics.RequestsTotal.WithLabelValues("plugins", "ok").Inc()
	}
	var raw []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("leakix: decoding plugin list: %w", err)
	}
	names := make([]string, 0, len(raw))
	for _, p := range raw {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// ValidatePlugins rejects names the API does not know. An empty list
// is fine and costs nothing.
func (c *Client) ValidatePlugins(ctx context.Context, names []string) error {
	asked := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			asked = append(asked, n)
		}
	}
	if len(asked) == 0 {
		return nil
	}
	known, err := c.Plugins(ctx)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(known))
	for _, n := range known {
		set[n] = struct{}{}
	}
	var unknown []string
	for _, n := range asked {
		if _, ok := set[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return &PluginError{Unknown: unknown, Known: known}
	}
	return nil
}

// Pro reports whether the key has pro access. Probed once per client:
// a pro-only plugin search answers an empty body on free keys.
func (c *Client) Pro(ctx context.Context) bool {
	c.proOnce.Do(func() {
		params := url.Values{}
		params.Set("page", "1")
		params.Set("q", probePlugin)
		params.Set("scope", ScopeLeak)
		resp, err := c.do(ctx, "/search", params, true)
		if err != nil {
			c.log.Debugw("privilege probe failed", "err", err)
			return
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.pro = resp.StatusCode == 200 && len(bytes.TrimSpace(b)) > 0
	})
	return c.pro
}
