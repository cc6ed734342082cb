package ecosystem

import (
	"path/filepath"
)

// Detector maps lockfile paths to the kind of lockfile they are. The
// decision is made from the file name only, never from the content.
type Detector struct {
	config *Config
}

// NewDetector creates a new Detector
func NewDetector(config *Config) *Detector {
	return &Detector{config: config}
}

// DetectFromPath returns the identity of the lockfile at path, or nil when
// its file name matches no configured lockfile kind.
func (d *Detector) DetectFromPath(path string) *LockfileIdentity {
	base := filepath.Base(path)

	for _, lf := range d.config.Lockfiles {
		if d.nameMatches(base, lf) {
			return &LockfileIdentity{
				ID:        lf.ID,
				Ecosystem: lf.Ecosystem,
				Format:    lf.Format,
				Path:      path,
			}
		}
	}

	return nil
}

// SupportedNames returns the exact file names the detector recognizes
func (d *Detector) SupportedNames() []string {
	var names []string
	for _, lf := range d.config.Lockfiles {
		names = append(names, lf.Names...)
	}
	return names
}

// nameMatches checks the base name against exact names first, then patterns
func (d *Detector) nameMatches(base string, lf LockfileConfig) bool {
	for _, name := range lf.Names {
		if base == name {
			return true
		}
	}

	for _, pattern := range lf.Patterns {
		if pattern.compiledRegex != nil && pattern.compiledRegex.MatchString(base) {
			return true
		}
	}

	return false
}
