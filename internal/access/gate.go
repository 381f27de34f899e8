package access

import (
	"context"

	"github.com/org/vaultgate/pkg/models"
)

// MetadataSource is the slice of the document store the gate needs: the two
// front-matter override signals for a file. Absent or non-boolean fields
// must come back as nil, never false.
type MetadataSource interface {
	FrontmatterFields(ctx context.Context, path string) (models.FileOverride, error)
}

// Gate is the single call surface capabilities use to check or enforce
// permissions before touching the document store. It composes the directory
// rule evaluator with per-file front-matter overrides.
type Gate struct {
	meta MetadataSource
}

// NewGate creates a Gate over the given metadata source.
func NewGate(meta MetadataSource) *Gate {
	return &Gate{meta: meta}
}

// ResolveFileOverride reads the file's front-matter signals. A failed read
// yields an empty override: the directory policy then decides alone.
func (g *Gate) ResolveFileOverride(ctx context.Context, path string) models.FileOverride {
	ov, err := g.meta.FrontmatterFields(ctx, path)
	if err != nil {
		return models.FileOverride{}
	}
	return ov
}

// IsReadable reports whether the credential may read the file. An explicit
// front-matter access value wins verbatim over every directory rule, in both
// directions; otherwise the file's parent directory is evaluated against the
// credential's policy.
func (g *Gate) IsReadable(ctx context.Context, path string, cred *models.Credential) bool {
	ov := g.ResolveFileOverride(ctx, path)
	if ov.Access != nil {
		return *ov.Access
	}
	return EvaluateDirectory(ParentDir(path), cred.Policy)
}

// IsWritable reports whether the credential may mutate the file. A read-only
// override blocks mutation regardless of the access decision.
func (g *Gate) IsWritable(ctx context.Context, path string, cred *models.Credential) bool {
	ov := g.ResolveFileOverride(ctx, path)
	if ov.Readonly != nil && *ov.Readonly {
		return false
	}
	if ov.Access != nil {
		return *ov.Access
	}
	return EvaluateDirectory(ParentDir(path), cred.Policy)
}

// IsDirectoryWritable evaluates a directory directly, for creating new files
// or folders where no file-level override can exist yet.
func (g *Gate) IsDirectoryWritable(dirPath string, cred *models.Credential) bool {
	return EvaluateDirectory(dirPath, cred.Policy)
}

// AssertReadable is IsReadable for handler boundaries that must fail fast.
func (g *Gate) AssertReadable(ctx context.Context, path string, cred *models.Credential) error {
	if !g.IsReadable(ctx, path, cred) {
		return &AccessDeniedError{Path: path}
	}
	return nil
}

// AssertWritable is IsWritable as a typed error, distinguishing a read-only
// block from a policy denial.
func (g *Gate) AssertWritable(ctx context.Context, path string, cred *models.Credential) error {
	ov := g.ResolveFileOverride(ctx, path)
	if ov.Readonly != nil && *ov.Readonly {
		return &ReadOnlyError{Path: path}
	}
	if ov.Access != nil {
		if !*ov.Access {
			return &AccessDeniedError{Path: path}
		}
		return nil
	}
	if !EvaluateDirectory(ParentDir(path), cred.Policy) {
		return &AccessDeniedError{Path: path}
	}
	return nil
}
