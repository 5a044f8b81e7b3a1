package git

import (
	"context"
	"strings"

	"github.com/gitvan/gitvan/errors"
)

// Notes operations back the receipt store. GitVan appends newline-delimited
// JSON records to notes on refs/notes/gitvan/results; the adapter itself is
// agnostic to the payload.

// NotesAppend appends payload to the note attached to object under ref,
// creating the note when absent.
func (r *Runner) NotesAppend(ctx context.Context, ec Context, ref, object, payload string) error {
	_, err := r.run(ctx, ec, "notes", "--ref", ref, "append", "-m", payload, object)
	return err
}

// NotesAdd replaces the note attached to object under ref.
func (r *Runner) NotesAdd(ctx context.Context, ec Context, ref, object, payload string) error {
	_, err := r.run(ctx, ec, "notes", "--ref", ref, "add", "-f", "-m", payload, object)
	return err
}

// NotesShow returns the note attached to object under ref, or "" when no
// note exists.
func (r *Runner) NotesShow(ctx context.Context, ec Context, ref, object string) (string, error) {
	out, err := r.run(ctx, ec, "notes", "--ref", ref, "show", object)
	if err != nil {
		var gerr *Error
		if errors.As(err, &gerr) && gerr.ExitCode == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// NotesList returns the object ids that carry a note under ref.
func (r *Runner) NotesList(ctx context.Context, ec Context, ref string) ([]string, error) {
	out, err := r.run(ctx, ec, "notes", "--ref", ref, "list")
	if err != nil {
		var gerr *Error
		if errors.As(err, &gerr) && gerr.ExitCode == 1 {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	// Each line is "<note-blob> <annotated-object>".
	var objects []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			objects = append(objects, fields[1])
		}
	}
	return objects, nil
}
