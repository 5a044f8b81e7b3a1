package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/internal/httpclient"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/cache"
)

// Resolved is a pack located on disk with its parsed manifest.
type Resolved struct {
	Kind     Kind
	Dir      string
	Manifest *pack.Manifest
}

// Fetcher resolves pack ids against all sources in a fixed order:
// builtin, local directory, cache, forge clone, registry fetch. The first
// source that produces the pack wins.
type Fetcher struct {
	rt       *conf.Runtime
	cache    *cache.Cache
	forge    *ForgeFetcher
	registry *RegistryClient
	log      *zap.SugaredLogger
}

// NewFetcher wires the source chain. httpClient may be nil outside tests.
func NewFetcher(rt *conf.Runtime, c *cache.Cache, httpClient *httpclient.SaferClient) *Fetcher {
	sourcesRoot := filepath.Join(rt.Config.Cache.Dir, "sources")
	limiter := NewRateLimiter(rt.Config.Forge.RatePerMinute, rt.Config.Forge.RateBurst)
	return &Fetcher{
		rt:       rt,
		cache:    c,
		forge:    NewForgeFetcher(rt, limiter, sourcesRoot),
		registry: NewRegistryClient(rt, c, httpClient, sourcesRoot),
		log:      rt.Log.Named("source"),
	}
}

// Resolve locates the pack for id, fetching it if necessary.
func (f *Fetcher) Resolve(ctx context.Context, id string) (*Resolved, error) {
	if r, ok := f.resolveBuiltin(id); ok {
		return r, nil
	}
	if r, ok := f.resolveLocal(id); ok {
		return r, nil
	}
	if r, ok := f.resolveCached(id); ok {
		return r, nil
	}

	if ref, ok := ParseForgeID(id, Provider(f.rt.Config.Forge.DefaultProvider)); ok {
		dir, err := f.forge.Fetch(ctx, ref)
		if err == nil {
			return f.finish(KindForge, id, dir)
		}
		var nf *PackNotFound
		if !errors.As(err, &nf) {
			return nil, err
		}
		// Not on the forge; the registry may still know the id.
	}

	dir, err := f.registry.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.finish(KindRegistry, id, dir)
}

// resolveBuiltin checks the seeded builtin pack directory.
func (f *Fetcher) resolveBuiltin(id string) (*Resolved, bool) {
	name := strings.TrimPrefix(id, "builtin/")
	dir := filepath.Join(f.rt.WorkDir, f.rt.Config.Packs.BuiltinDir, filepath.FromSlash(name))
	if !IsBuiltinID(id) && !dirHasManifest(dir) {
		return nil, false
	}
	m, err := pack.Load(dir)
	if err != nil {
		return nil, false
	}
	return &Resolved{Kind: KindBuiltin, Dir: dir, Manifest: m}, true
}

// resolveLocal checks the repository's own pack directory, then id as a
// filesystem path.
func (f *Fetcher) resolveLocal(id string) (*Resolved, bool) {
	candidates := []string{
		filepath.Join(f.rt.WorkDir, f.rt.Config.Packs.LocalDir, filepath.FromSlash(id)),
		filepath.Join(f.rt.WorkDir, filepath.FromSlash(id)),
	}
	for _, dir := range candidates {
		if !dirHasManifest(dir) {
			continue
		}
		m, err := pack.Load(dir)
		if err != nil {
			f.log.Warnw("local pack has invalid manifest", "dir", dir, "error", err)
			continue
		}
		return &Resolved{Kind: KindLocal, Dir: dir, Manifest: m}, true
	}
	return nil, false
}

// resolveCached checks whether a previous fetch already materialized the
// pack. The memoized dir is revalidated against the filesystem.
func (f *Fetcher) resolveCached(id string) (*Resolved, bool) {
	raw, ok, err := f.cache.Get(cache.NSPackResolve, id)
	if !ok || err != nil {
		return nil, false
	}
	dir := string(raw)
	if !dirHasManifest(dir) {
		_ = f.cache.Invalidate(cache.NSPackResolve, id)
		return nil, false
	}
	m, err := pack.Load(dir)
	if err != nil {
		return nil, false
	}
	kind := KindRegistry
	if strings.HasPrefix(filepath.Base(dir), "forge-") {
		kind = KindForge
	}
	return &Resolved{Kind: kind, Dir: dir, Manifest: m}, true
}

// finish loads the fetched manifest and memoizes the resolution.
func (f *Fetcher) finish(kind Kind, id, dir string) (*Resolved, error) {
	m, err := pack.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Set(cache.NSPackResolve, id, []byte(dir), 24*time.Hour); err != nil {
		f.log.Warnw("memoizing pack resolution failed", "id", id, "error", err)
	}
	return &Resolved{Kind: kind, Dir: dir, Manifest: m}, nil
}

func dirHasManifest(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, pack.ManifestFileName))
	return err == nil
}
