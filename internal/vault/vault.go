// Package vault is the document-store collaborator: plain file primitives
// over a directory tree of Markdown notes, plus front-matter metadata reads.
// It performs no authorization; callers consult the access gate first.
package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/org/vaultgate/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a requested path does not exist.
var ErrNotFound = errors.New("not found")

// Front-matter field names read by FrontmatterFields. Values of any other
// type than bool are treated as absent, never coerced.
const (
	fieldAccess   = "mcp_access"
	fieldReadonly = "mcp_readonly"
)

// Vault exposes a directory tree as a document store. Paths are
// vault-relative, /-delimited, with the root spelled "".
type Vault struct {
	root string
}

// Open validates the root directory and returns a Vault over it.
func Open(root string) (*Vault, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}
	return &Vault{root: root}, nil
}

// resolve maps a vault-relative path onto the filesystem, rejecting
// anything that would escape the root.
func (v *Vault) resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	cleaned := path.Clean("/" + rel)[1:]
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes vault root: %s", rel)
	}
	return filepath.Join(v.root, filepath.FromSlash(cleaned)), nil
}

// Read returns the full contents of a note.
func (v *Vault) Read(_ context.Context, rel string) ([]byte, error) {
	abs, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write creates or overwrites a note, creating parent directories as needed.
func (v *Vault) Write(_ context.Context, rel string, data []byte) error {
	abs, err := v.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	return os.WriteFile(abs, data, 0o644)
}

// Append appends to a note, creating it if absent. A newline is inserted
// before the appended content when the file does not already end with one.
func (v *Vault) Append(ctx context.Context, rel string, data []byte) error {
	existing, err := v.Read(ctx, rel)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		existing = append(existing, '\n')
	}
	return v.Write(ctx, rel, append(existing, data...))
}

// Delete removes a note.
func (v *Vault) Delete(_ context.Context, rel string) error {
	abs, err := v.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Exists reports whether a note is present.
func (v *Vault) Exists(_ context.Context, rel string) bool {
	abs, err := v.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// List returns the immediate entries of a directory, sorted by path.
func (v *Vault) List(_ context.Context, rel string) ([]models.NoteInfo, error) {
	abs, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	dir := strings.Trim(rel, "/")
	out := make([]models.NoteInfo, 0, len(entries))
	for _, e := range entries {
		p := e.Name()
		if dir != "" {
			p = dir + "/" + p
		}
		info := models.NoteInfo{Path: p, IsDir: e.IsDir()}
		if fi, err := e.Info(); err == nil && !e.IsDir() {
			info.Size = fi.Size()
			info.UpdatedAt = fi.ModTime().UTC()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WalkMarkdown calls fn for every .md file in the vault with its
// vault-relative path. fn returning an error stops the walk.
func (v *Vault) WalkMarkdown(_ context.Context, fn func(rel string) error) error {
	return filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// FrontmatterFields reads the access-control signals from a note's YAML
// front matter. A missing file, missing front matter, or non-boolean field
// yields nil signals.
func (v *Vault) FrontmatterFields(ctx context.Context, rel string) (models.FileOverride, error) {
	data, err := v.Read(ctx, rel)
	if err != nil {
		return models.FileOverride{}, err
	}
	fields := parseFrontmatter(data)

	var ov models.FileOverride
	if b, ok := fields[fieldAccess].(bool); ok {
		ov.Access = &b
	}
	if b, ok := fields[fieldReadonly].(bool); ok {
		ov.Readonly = &b
	}
	return ov, nil
}

// parseFrontmatter extracts the YAML block delimited by leading and closing
// "---" lines. Anything malformed yields an empty map.
func parseFrontmatter(data []byte) map[string]any {
	const delim = "---"
	if !bytes.HasPrefix(data, []byte(delim+"\n")) && !bytes.HasPrefix(data, []byte(delim+"\r\n")) {
		return nil
	}
	rest := data[len(delim):]
	rest = bytes.TrimLeft(rest, "\r\n")

	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil
	}
	block := rest[:end]

	fields := map[string]any{}
	if err := yaml.Unmarshal(block, &fields); err != nil {
		return nil
	}
	return fields
}
