package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsPolicy caches robots.txt per host.
type robotsPolicy struct {
	client *http.Client
	agent  string
	logger *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsPolicy(client *http.Client, agent string, logger *slog.Logger) *robotsPolicy {
	return &robotsPolicy{
		client: client,
		agent:  agent,
		logger: logger,
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether the agent may fetch target. An unreachable
// robots.txt allows everything.
func (p *robotsPolicy) Allowed(ctx context.Context, target *url.URL) bool {
	data := p.lookup(ctx, target)
	if data == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return data.TestAgent(path, p.agent)
}

func (p *robotsPolicy) lookup(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Scheme + "://" + target.Host

	p.mu.Lock()
	data, ok := p.hosts[host]
	p.mu.Unlock()
	if ok {
		return data
	}

	data = p.load(ctx, host)

	p.mu.Lock()
	p.hosts[host] = data
	p.mu.Unlock()
	return data
}

func (p *robotsPolicy) load(ctx context.Context, host string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("robots.txt unavailable", "host", host, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		p.logger.Debug("robots.txt unparsable", "host", host, "error", err)
		return nil
	}
	return data
}
