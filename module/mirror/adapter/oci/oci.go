// Package oci lists the images of any OCI distribution registry through the
// catalog and tags endpoints.
package oci

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	adp "github.com/galaxyproject/depotsync/module/mirror/adapter"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

func init() {
	if err := adp.RegisterFactory(types.OCI, new(factory)); err != nil {
		return
	}
}

type factory struct{}

func (f factory) Create(ctx context.Context, config types.ListerConfig, env adp.Env) (adp.Lister, error) {
	return newLister(config, env), nil
}

type lister struct {
	cfg  types.ListerConfig
	env  adp.Env
	host string
}

func newLister(config types.ListerConfig, env adp.Env) *lister {
	host := config.Registry
	if host == "" {
		host = util.TrimTransport(config.Endpoint)
	}
	if env.Side == "" {
		env.Side = types.SideSource
	}
	return &lister{cfg: config, env: env, host: strings.TrimSuffix(host, "/")}
}

func (l *lister) options(ctx context.Context) []crane.Option {
	c := l.cfg.Credentials
	return util.CraneOptions(ctx, l.host, c.Username, c.Password, c.Token, l.cfg.Insecure, l.env.UserAgent)
}

func (l *lister) ListArtifacts(ctx context.Context) (*types.Snapshot, error) {
	repos, err := crane.Catalog(l.host, l.options(ctx)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list registry catalog")
	}
	prefix := ""
	if l.cfg.Namespace != "" {
		prefix = strings.Trim(l.cfg.Namespace, "/") + "/"
	}
	var selected []string
	for _, repo := range repos {
		if strings.HasPrefix(repo, prefix) {
			selected = append(selected, repo)
		}
	}
	log.Info().Str("registry", l.host).Int("repositories", len(selected)).Msg("Fetched registry catalog")

	limit := l.cfg.MaxConcurrency
	if limit <= 0 {
		limit = 10
	}
	var (
		mu   sync.Mutex
		refs []types.ArtifactRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, repo := range selected {
		g.Go(func() error {
			src := path.Join(l.host, repo)
			tags, err := crane.ListTags(src, l.options(gctx)...)
			if err != nil {
				return errors.Wrap(err, "failed to list tags of "+repo)
			}
			short := strings.TrimPrefix(repo, prefix)
			mu.Lock()
			defer mu.Unlock()
			for _, tag := range tags {
				ref, err := types.NewArtifactRef(short+":"+tag, util.DockerLocator(src+":"+tag))
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
	return types.NewSnapshot(l.env.Side, refs...)
}
