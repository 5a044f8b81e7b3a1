// Package source resolves pack ids to on-disk pack trees. Sources are
// tried in a fixed order: builtin, local directory, cache, forge clone,
// registry fetch.
package source

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags the source variants.
type Kind string

const (
	KindBuiltin  Kind = "builtin"
	KindLocal    Kind = "local"
	KindRegistry Kind = "registry"
	KindForge    Kind = "forge"
)

// Provider identifies a forge host.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
	ProviderSourcehut Provider = "sourcehut"
)

// hosts maps providers to their https clone hosts. Forges are https-only.
var hosts = map[Provider]string{
	ProviderGitHub:    "github.com",
	ProviderGitLab:    "gitlab.com",
	ProviderBitbucket: "bitbucket.org",
	ProviderSourcehut: "git.sr.ht",
}

// ForgeRef addresses a pack inside a remote forge repository.
type ForgeRef struct {
	Provider Provider
	Owner    string
	Repo     string
	Ref      string // branch or tag; "" = default branch
	Subpath  string // path inside the repository; "" = root
}

// CloneURL returns the https clone URL. When token is non-empty it is
// embedded for authentication; callers must never persist the result.
func (f ForgeRef) CloneURL(token string) string {
	host := hosts[f.Provider]
	if token != "" {
		return fmt.Sprintf("https://%s@%s/%s/%s.git", token, host, f.Owner, f.Repo)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, f.Owner, f.Repo)
}

// CacheKey returns the deterministic cache key for this ref, e.g.
// forge-octocat-Hello-World-v1.0.0-packages-my-pack. The key never
// contains credentials.
func (f ForgeRef) CacheKey() string {
	parts := []string{"forge", f.Owner, f.Repo}
	if f.Ref != "" {
		parts = append(parts, f.Ref)
	}
	if f.Subpath != "" {
		parts = append(parts, strings.ReplaceAll(f.Subpath, "/", "-"))
	}
	return strings.Join(parts, "-")
}

func (f ForgeRef) String() string {
	s := fmt.Sprintf("%s:%s/%s", f.Provider, f.Owner, f.Repo)
	if f.Ref != "" {
		s += "#" + f.Ref
	}
	if f.Subpath != "" {
		s += "/" + f.Subpath
	}
	return s
}

var ownerRepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseForgeID parses forge-shaped pack ids:
//
//	owner/repo
//	owner/repo#ref
//	owner/repo/sub/path
//	owner/repo#ref/sub/path
//
// with an optional provider prefix (gitlab:, bitbucket:, sourcehut:);
// GitHub is the default. Returns ok=false for ids that are not
// forge-shaped (plain names, scoped registry ids with invalid segments).
func ParseForgeID(id string, defaultProvider Provider) (ForgeRef, bool) {
	ref := ForgeRef{Provider: defaultProvider}
	if ref.Provider == "" {
		ref.Provider = ProviderGitHub
	}

	for _, p := range []Provider{ProviderGitLab, ProviderBitbucket, ProviderSourcehut, ProviderGitHub} {
		if strings.HasPrefix(id, string(p)+":") {
			ref.Provider = p
			id = strings.TrimPrefix(id, string(p)+":")
			break
		}
	}

	slash := strings.IndexByte(id, '/')
	if slash <= 0 {
		return ForgeRef{}, false
	}
	ref.Owner = id[:slash]
	rest := id[slash+1:]
	if rest == "" {
		return ForgeRef{}, false
	}

	// The ref marker binds to the repo segment; anything after a later
	// slash is the subpath.
	if hash := strings.IndexByte(rest, '#'); hash >= 0 {
		ref.Repo = rest[:hash]
		tail := rest[hash+1:]
		if slash := strings.IndexByte(tail, '/'); slash >= 0 {
			ref.Ref = tail[:slash]
			ref.Subpath = tail[slash+1:]
		} else {
			ref.Ref = tail
		}
	} else if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		ref.Repo = rest[:slash]
		ref.Subpath = rest[slash+1:]
	} else {
		ref.Repo = rest
	}

	if !ownerRepoPattern.MatchString(ref.Owner) || !ownerRepoPattern.MatchString(ref.Repo) {
		return ForgeRef{}, false
	}
	if ref.Ref == "" && strings.IndexByte(id, '#') >= 0 {
		return ForgeRef{}, false
	}
	return ref, true
}

// IsBuiltinID reports whether id addresses a seeded builtin pack.
func IsBuiltinID(id string) bool {
	return strings.HasPrefix(id, "builtin/")
}
