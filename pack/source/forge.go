package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	cp "github.com/otiai10/copy"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/pack"
)

// manifestWalkUp bounds how far above the requested subpath we look for
// pack.json when the subpath points inside a pack.
const manifestWalkUp = 3

// ForgeFetcher clones packs from remote forges. Clones are shallow and
// land under <cacheRoot>/<cache key>; a second fetch of the same ref
// reuses the on-disk tree.
type ForgeFetcher struct {
	rt        *conf.Runtime
	limiter   *RateLimiter
	cacheRoot string
	log       *zap.SugaredLogger
}

// NewForgeFetcher creates a fetcher storing clones under cacheRoot.
func NewForgeFetcher(rt *conf.Runtime, limiter *RateLimiter, cacheRoot string) *ForgeFetcher {
	return &ForgeFetcher{
		rt:        rt,
		limiter:   limiter,
		cacheRoot: cacheRoot,
		log:       rt.Log.Named("forge"),
	}
}

// Fetch materializes the pack addressed by ref and returns its directory.
// The returned directory contains pack.json with forge provenance merged
// in; the auth token is used for the clone only and never written out.
func (f *ForgeFetcher) Fetch(ctx context.Context, ref ForgeRef) (string, error) {
	dest := filepath.Join(f.cacheRoot, ref.CacheKey())
	if _, err := os.Stat(filepath.Join(dest, pack.ManifestFileName)); err == nil {
		f.log.Debugw("forge pack already on disk", "ref", ref.String(), "dir", dest)
		return dest, nil
	}

	if err := f.limiter.Wait(ctx, ref.Provider); err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp("", "gitvan-forge-*")
	if err != nil {
		return "", errors.Wrap(err, "creating clone scratch dir")
	}
	defer os.RemoveAll(tmp)

	if err := f.clone(ctx, ref, tmp); err != nil {
		return "", err
	}

	packDir, err := locatePackDir(tmp, ref.Subpath)
	if err != nil {
		return "", errors.Wrapf(err, "in %s", ref.String())
	}

	if err := os.MkdirAll(f.cacheRoot, 0o755); err != nil {
		return "", errors.Wrap(err, "creating forge cache root")
	}
	err = cp.Copy(packDir, dest, cp.Options{
		Skip: func(info os.FileInfo, src, _ string) (bool, error) {
			return info.IsDir() && info.Name() == ".git", nil
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "relocating pack from %s", ref.String())
	}

	if err := mergeForgeMetadata(dest, ref); err != nil {
		return "", err
	}

	f.log.Infow("forge pack fetched", "ref", ref.String(), "dir", dest)
	return dest, nil
}

// clone performs a depth-limited clone of ref into dir. When a ref name is
// given it is tried as a tag first, then as a branch.
func (f *ForgeFetcher) clone(ctx context.Context, ref ForgeRef, dir string) error {
	var auth transport.AuthMethod
	if token := f.rt.ForgeToken(); token != "" {
		auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}

	depth := f.rt.Config.Forge.CloneDepth
	if depth <= 0 {
		depth = 1
	}

	opts := &gogit.CloneOptions{
		URL:          ref.CloneURL(""),
		Auth:         auth,
		Depth:        depth,
		SingleBranch: true,
		Tags:         gogit.NoTags,
	}

	if ref.Ref == "" {
		_, err := gogit.PlainCloneContext(ctx, dir, false, opts)
		return f.classifyCloneError(ref, err)
	}

	tagOpts := *opts
	tagOpts.ReferenceName = plumbing.NewTagReferenceName(ref.Ref)
	if _, err := gogit.PlainCloneContext(ctx, dir, false, &tagOpts); err == nil {
		return nil
	} else if isAuthError(err) {
		return &AuthError{Provider: ref.Provider, Err: err}
	}

	// Not a tag; retry as a branch into a fresh directory.
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "resetting clone dir")
	}
	branchOpts := *opts
	branchOpts.ReferenceName = plumbing.NewBranchReferenceName(ref.Ref)
	_, err := gogit.PlainCloneContext(ctx, dir, false, &branchOpts)
	return f.classifyCloneError(ref, err)
}

func (f *ForgeFetcher) classifyCloneError(ref ForgeRef, err error) error {
	if err == nil {
		return nil
	}
	if isAuthError(err) {
		return &AuthError{Provider: ref.Provider, Err: err}
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return &PackNotFound{ID: ref.String()}
	}
	return &NetworkError{Op: "clone " + ref.String(), Err: err}
}

func isAuthError(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed)
}

// locatePackDir finds the pack root: the subpath itself, or up to
// manifestWalkUp parent levels above it (the subpath may address a file
// or directory inside the pack). The search never leaves the clone root.
func locatePackDir(cloneRoot, subpath string) (string, error) {
	dir := filepath.Join(cloneRoot, filepath.FromSlash(subpath))
	for i := 0; i <= manifestWalkUp; i++ {
		if !strings.HasPrefix(dir, cloneRoot) {
			break
		}
		if _, err := os.Stat(filepath.Join(dir, pack.ManifestFileName)); err == nil {
			return dir, nil
		}
		if dir == cloneRoot {
			break
		}
		dir = filepath.Dir(dir)
	}
	return "", errors.Newf("no %s found at %q or up to %d levels above", pack.ManifestFileName, subpath, manifestWalkUp)
}

// mergeForgeMetadata rewrites pack.json with provenance under the reserved
// forge key. Any forge block shipped in the repository is replaced.
func mergeForgeMetadata(packDir string, ref ForgeRef) error {
	m, err := pack.Load(packDir)
	if err != nil {
		return err
	}
	m.Forge = map[string]any{
		"provider": string(ref.Provider),
		"owner":    ref.Owner,
		"repo":     ref.Repo,
	}
	if ref.Ref != "" {
		m.Forge["ref"] = ref.Ref
	}
	if ref.Subpath != "" {
		m.Forge["subpath"] = ref.Subpath
	}

	data, err := m.Serialize()
	if err != nil {
		return err
	}
	path := filepath.Join(packDir, pack.ManifestFileName)
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing forge metadata")
}
