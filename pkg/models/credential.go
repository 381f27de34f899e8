package models

import "time"

// Credential is an issued bearer secret plus its display attributes,
// capability flags, and directory policy.
type Credential struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Secret     string          `json:"secret,omitempty" yaml:"secret"`
	CreatedAt  time.Time       `json:"created_at" yaml:"created_at"`
	LastUsedAt time.Time       `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
	Caps       CapabilitySet   `json:"capabilities" yaml:"capabilities"`
	Policy     DirectoryPolicy `json:"directory_policy" yaml:"directory_policy"`
}

// Redacted returns a copy of the credential with the secret value removed,
// for list and display responses. The secret is shown in full exactly once,
// at issuance.
func (c *Credential) Redacted() *Credential {
	cp := *c
	cp.Secret = ""
	return &cp
}

// CapabilitySet gates which optional integrations a credential may invoke.
// Flags are consumed by handlers only; the access engine never evaluates
// them.
type CapabilitySet struct {
	FileAccess      bool `json:"file_access" yaml:"file_access"`
	ContentMutation bool `json:"content_mutation" yaml:"content_mutation"`
	Search          bool `json:"search" yaml:"search"`
	Tasks           bool `json:"tasks" yaml:"tasks"`
	Capture         bool `json:"capture" yaml:"capture"`
	Periodic        bool `json:"periodic" yaml:"periodic"`
	Manage          bool `json:"manage" yaml:"manage"`
}

// AllCapabilities returns a set with every flag enabled, used when
// bootstrapping the first credential.
func AllCapabilities() CapabilitySet {
	return CapabilitySet{
		FileAccess:      true,
		ContentMutation: true,
		Search:          true,
		Tasks:           true,
		Capture:         true,
		Periodic:        true,
		Manage:          true,
	}
}
