package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitvan/gitvan/errors"
)

// errIntegrity marks a disk entry whose payload no longer matches its
// recorded checksum. The entry is removed; callers refetch.
var errIntegrity = errors.New("cache: disk entry checksum mismatch")

// diskTier is a content-addressed store: each entry lives at
// <dir>/<ns>/<h[:2]>/<h> where h = sha256(key), as a meta JSON file plus a
// payload file (gzip-compressed above the configured threshold).
type diskTier struct {
	dir               string
	compressThreshold int64
}

type diskMeta struct {
	Key        string `json:"key"`
	Sum        string `json:"sum"` // sha256 of the raw payload
	Compressed bool   `json:"compressed"`
	ExpiresAt  string `json:"expires_at"`
}

func newDiskTier(dir string, compressThreshold int64) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %s", dir)
	}
	return &diskTier{dir: dir, compressThreshold: compressThreshold}, nil
}

func (d *diskTier) entryPath(ns, key string) string {
	h := sha256.Sum256([]byte(key))
	hx := hex.EncodeToString(h[:])
	return filepath.Join(d.dir, sanitizeNS(ns), hx[:2], hx)
}

func (d *diskTier) get(ns, key string) ([]byte, time.Time, error) {
	base := d.entryPath(ns, key)

	metaRaw, err := os.ReadFile(base + ".meta.json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, errors.Wrap(err, "reading cache meta")
	}
	var meta diskMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		d.remove(base)
		return nil, time.Time{}, nil
	}

	expires, err := time.Parse(time.RFC3339, meta.ExpiresAt)
	if err != nil || time.Now().After(expires) {
		d.remove(base)
		return nil, time.Time{}, nil
	}

	payload, err := os.ReadFile(base + ".dat")
	if err != nil {
		if os.IsNotExist(err) {
			d.remove(base)
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, errors.Wrap(err, "reading cache payload")
	}

	if meta.Compressed {
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			d.remove(base)
			return nil, time.Time{}, errIntegrity
		}
		raw, err := io.ReadAll(gz)
		gz.Close()
		if err != nil {
			d.remove(base)
			return nil, time.Time{}, errIntegrity
		}
		payload = raw
	}

	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != meta.Sum {
		d.remove(base)
		return nil, time.Time{}, errIntegrity
	}
	return payload, expires, nil
}

func (d *diskTier) set(ns, key string, value []byte, expires time.Time) error {
	base := d.entryPath(ns, key)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return errors.Wrap(err, "creating cache bucket")
	}

	sum := sha256.Sum256(value)
	payload := value
	compressed := false
	if int64(len(value)) > d.compressThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(value); err == nil && gz.Close() == nil {
			payload = buf.Bytes()
			compressed = true
		}
	}

	meta := diskMeta{
		Key:        key,
		Sum:        hex.EncodeToString(sum[:]),
		Compressed: compressed,
		ExpiresAt:  expires.UTC().Format(time.RFC3339),
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshaling cache meta")
	}

	// Write-to-temp then rename so readers never observe torn entries.
	if err := atomicWrite(base+".dat", payload); err != nil {
		return err
	}
	return atomicWrite(base+".meta.json", metaRaw)
}

func (d *diskTier) invalidate(ns, key string) error {
	switch {
	case ns == "":
		entries, err := os.ReadDir(d.dir)
		if err != nil {
			return errors.Wrap(err, "listing cache dir")
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := os.RemoveAll(filepath.Join(d.dir, e.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	case key == "":
		return os.RemoveAll(filepath.Join(d.dir, sanitizeNS(ns)))
	default:
		d.remove(d.entryPath(ns, key))
		return nil
	}
}

// compact removes expired entries and orphaned payloads, returning the
// number of entries reclaimed.
func (d *diskTier) compact() (int, error) {
	reclaimed := 0
	err := filepath.WalkDir(d.dir, func(path string, de os.DirEntry, err error) error {
		if err != nil || de.IsDir() || !strings.HasSuffix(path, ".meta.json") {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var meta diskMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			d.remove(strings.TrimSuffix(path, ".meta.json"))
			reclaimed++
			return nil
		}
		expires, err := time.Parse(time.RFC3339, meta.ExpiresAt)
		if err != nil || time.Now().After(expires) {
			d.remove(strings.TrimSuffix(path, ".meta.json"))
			reclaimed++
		}
		return nil
	})
	return reclaimed, err
}

func (d *diskTier) remove(base string) {
	_ = os.Remove(base + ".meta.json")
	_ = os.Remove(base + ".dat")
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "renaming into place")
	}
	return nil
}

func sanitizeNS(ns string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, ns)
}
