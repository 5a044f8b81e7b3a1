package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/internal/httpclient"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/pack/cache"
)

// maxMetadataBytes caps registry metadata responses.
const maxMetadataBytes = 1 << 20

// packInfo is the registry's answer for a pack id.
type packInfo struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	URL     string `json:"url"`  // archive download location
	Hash    string `json:"hash"` // sha256 of the archive, 64 hex
}

// RegistryClient fetches packs from the HTTPS registry. Metadata lookups
// go through the two-tier cache with negative caching; archive downloads
// land under cacheRoot and are checksum-verified.
type RegistryClient struct {
	rt        *conf.Runtime
	http      *httpclient.SaferClient
	cache     *cache.Cache
	cacheRoot string
	log       *zap.SugaredLogger
}

// NewRegistryClient creates a registry client storing downloads under
// cacheRoot. Pass a WrapClient-based SaferClient in tests to reach a
// local registry stub.
func NewRegistryClient(rt *conf.Runtime, c *cache.Cache, client *httpclient.SaferClient, cacheRoot string) *RegistryClient {
	if client == nil {
		client = httpclient.New(time.Duration(rt.Config.Registry.TimeoutSeconds) * time.Second)
	}
	return &RegistryClient{
		rt:        rt,
		http:      client,
		cache:     c,
		cacheRoot: cacheRoot,
		log:       rt.Log.Named("registry"),
	}
}

// Fetch resolves id against the registry and returns the unpacked pack
// directory.
func (r *RegistryClient) Fetch(ctx context.Context, id string) (string, error) {
	info, err := r.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(r.cacheRoot, "registry-"+sanitizeID(id))
	if _, err := os.Stat(filepath.Join(dest, pack.ManifestFileName)); err == nil {
		r.log.Debugw("registry pack already on disk", "id", id, "dir", dest)
		return dest, nil
	}

	if err := r.download(ctx, info, dest); err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(dest, pack.ManifestFileName)); err != nil {
		_ = os.RemoveAll(dest)
		return "", errors.Newf("registry archive for %s contains no %s", id, pack.ManifestFileName)
	}

	r.log.Infow("registry pack fetched", "id", id, "version", info.Version, "dir", dest)
	return dest, nil
}

// lookup fetches pack metadata, coalescing concurrent lookups and caching
// misses negatively so a flapping registry is not hammered.
func (r *RegistryClient) lookup(ctx context.Context, id string) (*packInfo, error) {
	raw, err := r.cache.GetOrFetch(ctx, cache.NSRegistryFetch, id, true, func(ctx context.Context) ([]byte, error) {
		return r.fetchMetadata(ctx, id)
	})
	if err != nil {
		if errors.Is(err, cache.ErrNegativeEntry) {
			return nil, &PackNotFound{ID: id}
		}
		return nil, err
	}

	var info packInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errors.Wrapf(err, "parsing registry metadata for %s", id)
	}
	if info.URL == "" {
		return nil, errors.Newf("registry metadata for %s has no download URL", id)
	}
	return &info, nil
}

func (r *RegistryClient) fetchMetadata(ctx context.Context, id string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/packs/%s", strings.TrimRight(r.rt.Config.Registry.URL, "/"), url.PathEscape(id))

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := r.http.Do(req)
		if err != nil {
			return &NetworkError{Op: "registry lookup", Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&PackNotFound{ID: id})
		case resp.StatusCode >= 500:
			return &NetworkError{Op: "registry lookup", Err: errors.Newf("status %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(errors.Newf("registry returned status %d for %s", resp.StatusCode, id))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
		if err != nil {
			return &NetworkError{Op: "registry read", Err: err}
		}
		return nil
	}

	if err := backoff.Retry(op, r.policy(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// download retrieves and unpacks the archive. The URL from the registry is
// forced to https and checksum-pinned so a tampered response cannot
// redirect us to unauthenticated content.
func (r *RegistryClient) download(ctx context.Context, info *packInfo, dest string) error {
	u, err := url.Parse(info.URL)
	if err != nil {
		return errors.Wrapf(err, "registry download URL for %s", info.ID)
	}
	u.Scheme = "https"
	if info.Hash != "" {
		q := u.Query()
		q.Set("checksum", "sha256:"+info.Hash)
		u.RawQuery = q.Encode()
	}

	op := func() error {
		tmp := dest + ".partial"
		_ = os.RemoveAll(tmp)
		client := &getter.Client{
			Ctx:  ctx,
			Src:  u.String(),
			Dst:  tmp,
			Mode: getter.ClientModeAny,
		}
		if err := client.Get(); err != nil {
			_ = os.RemoveAll(tmp)
			if strings.Contains(err.Error(), "checksum") {
				return backoff.Permanent(&IntegrityMismatch{ID: info.ID, Want: info.Hash, Got: "download"})
			}
			return &NetworkError{Op: "registry download", Err: err}
		}
		_ = os.RemoveAll(dest)
		if err := os.Rename(tmp, dest); err != nil {
			return backoff.Permanent(errors.Wrap(err, "installing downloaded pack"))
		}
		return nil
	}
	return backoff.Retry(op, r.policy(ctx))
}

func (r *RegistryClient) policy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Duration(r.rt.Config.Registry.TimeoutSeconds) * time.Second
	retries := uint64(r.rt.Config.Registry.MaxRetries)
	return backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)
}

func sanitizeID(id string) string {
	return strings.NewReplacer("/", "-", "#", "-", ":", "-").Replace(id)
}
