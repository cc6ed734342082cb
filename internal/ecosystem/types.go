package ecosystem

import "github.com/tomoyayamashita/iocgate/internal/lockfile"

// EcosystemID represents a package ecosystem identifier
type EcosystemID string

const (
	EcosystemNPM EcosystemID = "npm"
)

// PackageIdentity represents a unique package identification
type PackageIdentity struct {
	Ecosystem EcosystemID `json:"ecosystem"`
	Name      string      `json:"name"`
	Version   string      `json:"version"`
}

// String returns a string representation of the package identity
func (p PackageIdentity) String() string {
	if p.Version == "" {
		return string(p.Ecosystem) + ":" + p.Name
	}
	return string(p.Ecosystem) + ":" + p.Name + "@" + p.Version
}

// LockfileIdentity describes a lockfile recognized by the Detector
type LockfileIdentity struct {
	ID        string          `json:"id"`
	Ecosystem EcosystemID     `json:"ecosystem"`
	Format    lockfile.Format `json:"format"`
	Path      string          `json:"path"`
}

// Package returns the identity of a package resolved in this lockfile
func (l LockfileIdentity) Package(name, version string) PackageIdentity {
	return PackageIdentity{
		Ecosystem: l.Ecosystem,
		Name:      name,
		Version:   version,
	}
}
