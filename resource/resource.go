// Package resource holds the identity shared by every relocatable resource,
// and the persistable Config it is described by.
package resource

import (
	"fmt"

	"github.com/rs/xid"
)

// Well known Config keys.
const (
	KeyName    = "name"
	KeyType    = "resource_type"
	KeySubtype = "resource_subtype"
)

// Resource identifies a resource. Name uniqueness is not enforced. Dryrun only
// defers existence checks, never correctness checks.
type Resource struct {
	Name    string
	Dryrun  bool
	Type    string
	Subtype string
}

// GenerateName returns a new unique name with the given prefix, eg: file_cq6s8hv2ju3b1rk3bu00.
func GenerateName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, xid.New().String())
}

// NameOrGenerate returns Name, or a generated name with prefix when Name is empty.
func (r Resource) NameOrGenerate(prefix string) string {
	if r.Name != "" {
		return r.Name
	}
	return GenerateName(prefix)
}

// Config returns the identity part of the resource configuration.
func (r Resource) Config() Config {
	config := Config{
		KeyType:    r.Type,
		KeySubtype: r.Subtype,
	}
	if r.Name != "" {
		config[KeyName] = r.Name
	}
	return config
}

func (r Resource) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%s(unnamed)", r.Subtype)
	}
	return fmt.Sprintf("%s(%s)", r.Subtype, r.Name)
}

// FromConfig loads the identity from a Config.
func FromConfig(config Config, dryrun bool) Resource {
	return Resource{
		Name:    config.String(KeyName),
		Dryrun:  dryrun,
		Type:    config.String(KeyType),
		Subtype: config.String(KeySubtype),
	}
}
