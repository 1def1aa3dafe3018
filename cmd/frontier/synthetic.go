package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// syntheticSite serves a generated link graph. A page at /a/b has depth 2;
// pages above the depth limit link to fanout children, and every page links
// back to its host root.
type syntheticSite struct {
	fanout  int
	depth   int
	latency time.Duration
}

func newSyntheticSite(fanout, depth int, latency time.Duration) (*syntheticSite, error) {
	if fanout < 0 {
		return nil, fmt.Errorf("fanout must not be negative")
	}
	if depth < 0 {
		return nil, fmt.Errorf("max depth must not be negative")
	}
	return &syntheticSite{fanout: fanout, depth: depth, latency: latency}, nil
}

// Visit returns the links on rawURL.
func (s *syntheticSite) Visit(ctx context.Context, rawURL string) ([]string, error) {
	page, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if page.Host == "" {
		return nil, fmt.Errorf("parse %q: missing host", rawURL)
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	root := page.Scheme + "://" + page.Host + "/"
	segments := pathSegments(page.Path)
	if len(segments) >= s.depth {
		return []string{root}, nil
	}

	links := make([]string, 0, s.fanout+1)
	for i := 0; i < s.fanout; i++ {
		child := append(segments[:len(segments):len(segments)], strconv.Itoa(i))
		links = append(links, root+strings.Join(child, "/"))
	}
	return append(links, root), nil
}

func pathSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// pageCount returns the number of distinct pages reachable from one root.
func (s *syntheticSite) pageCount() int {
	total, level := 0, 1
	for d := 0; d <= s.depth; d++ {
		total += level
		level *= s.fanout
	}
	return total
}
