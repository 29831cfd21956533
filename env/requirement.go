package env

import (
	"fmt"

	"github.com/fornellas/roam/packages"
	"github.com/fornellas/roam/resource"
)

// RequirementKind tells how a Requirement was declared.
type RequirementKind int

const (
	// StringSpec is a package spec string, eg: "numpy" or "conda:pytorch".
	StringSpec RequirementKind = iota
	// LocalSource is a string naming a local source tree, eg: "./src".
	LocalSource
	// StructuredPackage is a packages.Package.
	StructuredPackage
)

func (k RequirementKind) String() string {
	switch k {
	case StringSpec:
		return "StringSpec"
	case LocalSource:
		return "LocalSource"
	case StructuredPackage:
		return "StructuredPackage"
	default:
		return fmt.Sprintf("RequirementKind(%d)", int(k))
	}
}

// Requirement is an Env requirement, classified once when declared.
type Requirement struct {
	Kind RequirementKind
	// Spec is the declared string, for StringSpec and LocalSource.
	Spec string
	// Package installs the requirement. It is resolved when the Requirement is created and
	// never again.
	Package *packages.Package
}

// ParseRequirement classifies a requirement string, resolving its Package. Whether a
// string names a local source tree is only checked here.
func ParseRequirement(s string) Requirement {
	pkg := packages.FromString(s)
	if pkg.Target != nil {
		return Requirement{Kind: LocalSource, Spec: s, Package: pkg}
	}
	return Requirement{Kind: StringSpec, Spec: s, Package: pkg}
}

// PackageRequirement wraps a Package as a Requirement.
func PackageRequirement(pkg *packages.Package) Requirement {
	return Requirement{Kind: StructuredPackage, Package: pkg}
}

func requirementFromConfig(value any) (Requirement, error) {
	switch value := value.(type) {
	case string:
		return ParseRequirement(value), nil
	case map[string]any:
		pkg, err := packages.FromConfig(resource.Config(value))
		if err != nil {
			return Requirement{}, err
		}
		return PackageRequirement(pkg), nil
	case resource.Config:
		return requirementFromConfig(map[string]any(value))
	default:
		return Requirement{}, fmt.Errorf("%w: %#v", packages.ErrInvalidRequirement, value)
	}
}

// Resolve returns the Package that installs the requirement.
func (r Requirement) Resolve() (*packages.Package, error) {
	switch r.Kind {
	case StringSpec, LocalSource, StructuredPackage:
		if r.Package == nil {
			return nil, fmt.Errorf("%w: %s without package", packages.ErrInvalidRequirement, r.Kind)
		}
		return r.Package, nil
	default:
		return nil, fmt.Errorf("%w: %s", packages.ErrInvalidRequirement, r.Kind)
	}
}

// HasSource reports whether the requirement installs from a source tree, which must be
// relocated along with its Env.
func (r Requirement) HasSource() bool {
	return r.Kind != StringSpec && r.Package != nil && r.Package.Target != nil
}

func (r Requirement) config() any {
	switch r.Kind {
	case StructuredPackage:
		if r.Package == nil {
			return nil
		}
		return map[string]any(r.Package.Config())
	default:
		return r.Spec
	}
}

func (r Requirement) String() string {
	if r.Kind == StructuredPackage && r.Package != nil {
		return r.Package.String()
	}
	return r.Spec
}
