package config

import (
	"math/rand"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// ProxyEndpoint is one entry from the proxy list file.
type ProxyEndpoint struct {
	Host string
	Port string
	User string
	Pass string
}

// Addr returns the host:port form chromedp's --proxy-server flag expects.
func (p ProxyEndpoint) Addr() string {
	return p.Host + ":" + p.Port
}

// ProxyPool holds the loaded endpoints. A nil or empty pool disables proxying.
type ProxyPool struct {
	endpoints []ProxyEndpoint
}

// LoadProxies parses a line-delimited host:port[:user:pass] file. Comment
// lines starting with # and blank lines are skipped. A missing file yields an
// empty pool rather than an error.
func LoadProxies(path string) *ProxyPool {
	pool := &ProxyPool{}
	data, err := os.ReadFile(path)
	if err != nil {
		return pool
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		switch len(parts) {
		case 2:
			pool.endpoints = append(pool.endpoints, ProxyEndpoint{Host: parts[0], Port: parts[1]})
		case 4:
			pool.endpoints = append(pool.endpoints, ProxyEndpoint{Host: parts[0], Port: parts[1], User: parts[2], Pass: parts[3]})
		default:
			log.Warn("skipping malformed proxy line", "line", line)
		}
	}
	return pool
}

// Len reports the number of usable endpoints.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

// Pick selects an endpoint uniformly at random. ok is false when the pool is
// empty.
func (p *ProxyPool) Pick() (ProxyEndpoint, bool) {
	if p.Len() == 0 {
		return ProxyEndpoint{}, false
	}
	return p.endpoints[rand.Intn(len(p.endpoints))], true
}
