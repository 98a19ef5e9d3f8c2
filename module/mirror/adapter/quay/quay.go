// Package quay lists every tag of every public image repository in a
// quay.io namespace through the quay REST API.
package quay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	adp "github.com/galaxyproject/depotsync/module/mirror/adapter"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
)

const retryMax = 4

func init() {
	if err := adp.RegisterFactory(types.QUAY, new(factory)); err != nil {
		return
	}
}

type factory struct{}

func (f factory) Create(ctx context.Context, config types.ListerConfig, env adp.Env) (adp.Lister, error) {
	return newLister(config, env)
}

type lister struct {
	client    *retryablehttp.Client
	base      *url.URL
	registry  string
	namespace string
	token     string
	userAgent string
	side      types.Side

	maxConcurrency int
	limiter        *rate.Limiter
}

func newLister(config types.ListerConfig, env adp.Env) (*lister, error) {
	endpoint := config.Endpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid quay endpoint %q: %w", config.Endpoint, err)
	}
	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	limit := rate.Inf
	burst := maxConcurrency
	if config.MaxPerSecond > 0 {
		limit = rate.Limit(config.MaxPerSecond)
		burst = config.MaxPerSecond
	}
	side := env.Side
	if side == "" {
		side = types.SideSource
	}
	return &lister{
		client:         adp.NewHTTPClient(retryMax),
		base:           base,
		registry:       config.Registry,
		namespace:      config.Namespace,
		token:          config.Credentials.Token,
		userAgent:      env.UserAgent,
		side:           side,
		maxConcurrency: maxConcurrency,
		limiter:        rate.NewLimiter(limit, burst),
	}, nil
}

type repository struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	IsPublic  bool   `json:"is_public"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
}

type repositoryList struct {
	Repositories []repository `json:"repositories"`
	NextPage     string       `json:"next_page"`
}

type repositoryTags struct {
	repository
	Tags map[string]struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func (l *lister) ListArtifacts(ctx context.Context) (*types.Snapshot, error) {
	names, err := l.repositories(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("namespace", l.namespace).Int("repositories", len(names)).Msg("Fetched quay repositories")

	var (
		mu   sync.Mutex
		refs []types.ArtifactRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrency)
	for _, name := range names {
		g.Go(func() error {
			if err := l.limiter.Wait(gctx); err != nil {
				return err
			}
			tags, err := l.tags(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, tag := range tags {
				image := name + ":" + tag
				ref, err := types.NewArtifactRef(image, util.DockerLocator(util.GenImageRef(l.registry, l.namespace, image)))
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })
	return types.NewSnapshot(l.side, refs...)
}

// repositories follows next_page until the listing is exhausted.
func (l *lister) repositories(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("public", "true")
	params.Set("repo_kind", "image")
	params.Set("namespace", l.namespace)

	var names []string
	for page := 1; ; page++ {
		log.Debug().Int("page", page).Msg("Fetching quay repository batch")
		var list repositoryList
		if err := l.get(ctx, "repository", params, &list); err != nil {
			return nil, err
		}
		for _, repo := range list.Repositories {
			names = append(names, repo.Name)
		}
		if list.NextPage == "" {
			return names, nil
		}
		params.Set("next_page", list.NextPage)
	}
}

func (l *lister) tags(ctx context.Context, name string) ([]string, error) {
	var repo repositoryTags
	if err := l.get(ctx, "repository/"+l.namespace+"/"+name, nil, &repo); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(repo.Tags))
	for tag := range repo.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func (l *lister) get(ctx context.Context, path string, params url.Values, v interface{}) error {
	u := l.base.ResolveReference(&url.URL{Path: path})
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &adp.StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", u.String(), err)
	}
	return nil
}
