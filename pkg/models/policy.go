package models

// DirectoryRule grants or denies access to one vault-relative directory and
// everything nested under it. Paths carry no trailing slash; the empty
// string denotes the vault root.
type DirectoryRule struct {
	Path    string `json:"path" yaml:"path"`
	Allowed bool   `json:"allowed" yaml:"allowed"`
}

// DirectoryPolicy is an ordered rule list plus a root default. Rule order is
// caller-controlled and defines priority: the first matching rule wins,
// regardless of how specific a later rule is.
type DirectoryPolicy struct {
	Rules          []DirectoryRule `json:"rules" yaml:"rules"`
	RootPermission bool            `json:"root_permission" yaml:"root_permission"`
}

// PermissivePolicy returns the issuance default: no rules, root allowed.
func PermissivePolicy() DirectoryPolicy {
	return DirectoryPolicy{RootPermission: true}
}

// FileOverride holds the two optional front-matter signals read from a file.
// A nil pointer means the signal is absent, which is distinct from false:
// an explicit Access value supersedes every directory rule, and Readonly
// blocks mutation independently of the access decision.
type FileOverride struct {
	Access   *bool
	Readonly *bool
}
