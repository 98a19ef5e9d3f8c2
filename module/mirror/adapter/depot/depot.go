// Package depot lists the images published in one or more HTTP directory
// indexes, such as the Singularity depot served by nginx autoindex.
package depot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	adp "github.com/galaxyproject/depotsync/module/mirror/adapter"
	"github.com/galaxyproject/depotsync/module/mirror/types"
)

const retryMax = 4

func init() {
	if err := adp.RegisterFactory(types.DEPOT, new(factory)); err != nil {
		return
	}
}

type factory struct{}

func (f factory) Create(ctx context.Context, config types.ListerConfig, env adp.Env) (adp.Lister, error) {
	return newLister(config, env)
}

type lister struct {
	client    *retryablehttp.Client
	urls      []*url.URL
	suffix    string
	userAgent string
	side      types.Side
}

func newLister(config types.ListerConfig, env adp.Env) (*lister, error) {
	l := &lister{
		client:    adp.NewHTTPClient(retryMax),
		suffix:    config.Suffix,
		userAgent: env.UserAgent,
		side:      env.Side,
	}
	if l.side == "" {
		l.side = types.SideDestination
	}
	for _, raw := range config.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid depot url %q: %w", raw, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		l.urls = append(l.urls, u)
	}
	return l, nil
}

// ListArtifacts merges every index. A name published under several URLs is
// listed once, with the locator of the first URL.
func (l *lister) ListArtifacts(ctx context.Context) (*types.Snapshot, error) {
	snap := types.EmptySnapshot(l.side)
	for _, u := range l.urls {
		hrefs, err := l.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		if hrefs == nil {
			log.Warn().Str("url", u.String()).Msg("No images found at depot url")
			continue
		}
		for _, href := range hrefs {
			name, locator, ok := l.resolve(u, href)
			if !ok || snap.Has(name) {
				continue
			}
			if err := snap.Add(types.MustArtifactRef(name, locator)); err != nil {
				return nil, err
			}
		}
		log.Info().Str("url", u.String()).Int("images", len(hrefs)).Msg("Fetched depot index")
	}
	return snap, nil
}

func (l *lister) resolve(base *url.URL, href string) (string, string, bool) {
	// "samtools:1.9" would otherwise parse as scheme "samtools"
	if !strings.Contains(href, "://") && !strings.HasPrefix(href, "/") {
		href = "./" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}
	abs := base.ResolveReference(ref)
	name := path.Base(abs.Path)
	if l.suffix != "" {
		name = strings.TrimSuffix(name, l.suffix)
	}
	if name == "" || name == "/" || name == "." || !strings.Contains(name, ":") {
		return "", "", false
	}
	return name, abs.String(), true
}

// fetch returns the image hrefs of one index; a missing index yields nil.
func (l *lister) fetch(ctx context.Context, u *url.URL) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &adp.StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	hrefs, err := extractImageHrefs(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse depot index %s: %w", u.String(), err)
	}
	if hrefs == nil {
		hrefs = []string{}
	}
	return hrefs, nil
}

// extractImageHrefs returns the href of every anchor that names an image,
// recognised by the ':' between name and tag.
func extractImageHrefs(r io.Reader) ([]string, error) {
	var hrefs []string

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return hrefs, nil
			}
			return nil, z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" && isImageHref(attr.Val) {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
	}
}

func isImageHref(href string) bool {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return strings.Contains(href, ":")
}
