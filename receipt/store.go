package receipt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
)

// NotesRef is the notes namespace owned exclusively by the receipt store.
const NotesRef = "refs/notes/gitvan/results"

// Store reads and writes receipts as newline-delimited JSON in git notes.
// It is the sole authority for "already applied" (by fingerprint) and
// "already fired" (by (jobId, commit)).
type Store struct {
	runner *git.Runner
	ec     git.Context
	log    *zap.SugaredLogger

	// Notes writes race each other inside one process; the daemon also
	// serializes them across workers with a key-lock.
	mu sync.Mutex
}

// NewStore creates a store for the repository addressed by ec.
func NewStore(runner *git.Runner, ec git.Context, log *zap.SugaredLogger) *Store {
	return &Store{runner: runner, ec: ec, log: log.Named("receipts")}
}

// Write appends one receipt to the note of the given commit.
func (s *Store) Write(ctx context.Context, commit string, r *Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	line, err := r.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.runner.NotesAppend(ctx, s.ec, NotesRef, commit, line); err != nil {
		return errors.Wrapf(err, "writing receipt for %s", r.ID)
	}
	s.log.Debugw("receipt written",
		"id", r.ID, "status", r.Status, "commit", commit)
	return nil
}

// ReadAll returns every live receipt attached to the given commit.
// Tombstoned ids are filtered out.
func (s *Store) ReadAll(ctx context.Context, commit string) ([]*Receipt, error) {
	note, err := s.runner.NotesShow(ctx, s.ec, NotesRef, commit)
	if err != nil {
		return nil, errors.Wrapf(err, "reading receipts on %s", commit)
	}
	if note == "" {
		return nil, nil
	}

	var receipts []*Receipt
	tombstoned := map[string]bool{}
	for _, line := range strings.Split(note, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := parseLine(line)
		if err != nil {
			// A malformed line must not hide the rest of the note.
			s.log.Warnw("skipping malformed receipt line", "commit", commit, "error", err)
			continue
		}
		if r.Role == RoleTombstone {
			tombstoned[r.ID] = true
			continue
		}
		receipts = append(receipts, r)
	}

	if len(tombstoned) == 0 {
		return receipts, nil
	}
	live := receipts[:0]
	for _, r := range receipts {
		if !tombstoned[r.ID] {
			live = append(live, r)
		}
	}
	return live, nil
}

// Has reports whether a successful receipt exists for the given idempotency
// key on the given commit. For jobs the key is the job id; for pack
// applications it is the pack id.
func (s *Store) Has(ctx context.Context, commit, idempotencyKey string) (bool, error) {
	receipts, err := s.ReadAll(ctx, commit)
	if err != nil {
		return false, err
	}
	for _, r := range receipts {
		if r.ID == idempotencyKey && r.Succeeded() {
			return true, nil
		}
	}
	return false, nil
}

// HasFingerprint reports whether any commit in the repository carries a
// successful receipt with the given pack fingerprint. This is the
// idempotent-apply lookup.
func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	commits, err := s.runner.NotesList(ctx, s.ec, NotesRef)
	if err != nil {
		return false, err
	}
	for _, commit := range commits {
		receipts, err := s.ReadAll(ctx, commit)
		if err != nil {
			return false, err
		}
		for _, r := range receipts {
			if r.Fingerprint == fingerprint && r.Succeeded() && r.Status != StatusSkip {
				return true, nil
			}
		}
	}
	return false, nil
}

// List returns all receipts in the repository, optionally filtered by id
// prefix. Ordering follows notes enumeration order.
func (s *Store) List(ctx context.Context, prefix string) ([]*Receipt, error) {
	commits, err := s.runner.NotesList(ctx, s.ec, NotesRef)
	if err != nil {
		return nil, err
	}
	var all []*Receipt
	for _, commit := range commits {
		receipts, err := s.ReadAll(ctx, commit)
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			if prefix == "" || strings.HasPrefix(r.ID, prefix) {
				all = append(all, r)
			}
		}
	}
	return all, nil
}

// Tombstone logically deletes all receipts with the given id on a commit.
func (s *Store) Tombstone(ctx context.Context, commit, id string) error {
	t := &Receipt{
		Role:      RoleTombstone,
		ID:        id,
		Status:    StatusOK,
		Action:    ActionApply,
		Commit:    commit,
		Timestamp: s.runner.NowISO(),
	}
	return s.Write(ctx, commit, t)
}

func parseLine(line string) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return nil, errors.Wrap(err, "parsing receipt line")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
