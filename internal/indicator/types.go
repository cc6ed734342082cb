package indicator

// Record is a single row of an IOC feed: a package name and, optionally,
// the release version that was flagged.
type Record struct {
	Name    string `json:"package"`
	Version string `json:"version,omitempty"` // empty when the feed gives no version
}

// HasVersion reports whether the feed pinned a specific version
func (r Record) HasVersion() bool {
	return r.Version != ""
}

// String returns name@version, or just the name when no version is pinned
func (r Record) String() string {
	if !r.HasVersion() {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// Header spellings accepted for each column, in priority order.
var (
	nameHeaders    = []string{"package", "package_name", "name", "pkg", "pkg_name"}
	versionHeaders = []string{"version", "pkg_version", "package_version", "ver"}
)
