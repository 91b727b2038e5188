// Package value holds the small validated values shared by file metadata and
// version records.
package value

import (
	"regexp"
	"strings"
	"time"

	"github.com/abduss/filemeta/internal/errs"
)

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// Checksum is a content hash in whatever encoding the client computed it.
type Checksum string

// Validate rejects blank checksums.
func (c Checksum) Validate() error {
	if strings.TrimSpace(string(c)) == "" {
		return errs.Validationf("checksum must not be blank")
	}
	return nil
}

// Equal compares checksums exactly.
func (c Checksum) Equal(other Checksum) bool {
	return c == other
}

func (c Checksum) String() string {
	return string(c)
}

// Ownership identifies the owner and group of a file. Details carries any
// additional attributes the client attached.
type Ownership struct {
	Owner   string         `json:"owner"`
	Group   string         `json:"group"`
	Details map[string]any `json:"details,omitempty"`
}

// Validate checks owner and group against the identity format.
func (o Ownership) Validate() error {
	if !identityPattern.MatchString(o.Owner) {
		return errs.Validationf("owner %q must match %s", o.Owner, identityPattern.String())
	}
	if !identityPattern.MatchString(o.Group) {
		return errs.Validationf("group %q must match %s", o.Group, identityPattern.String())
	}
	return nil
}

// VersionInfo is the (number, timestamp, checksum) triple describing one
// point in a file's history.
type VersionInfo struct {
	Number    int       `json:"version_number"`
	Timestamp time.Time `json:"timestamp"`
	Checksum  Checksum  `json:"checksum"`
}

// Validate checks the triple is complete.
func (v VersionInfo) Validate() error {
	if v.Number < 1 {
		return errs.Validationf("version number must be at least 1, got %d", v.Number)
	}
	if v.Timestamp.IsZero() {
		return errs.Validationf("version timestamp must be set")
	}
	return v.Checksum.Validate()
}

// IsNewerThan reports whether v was recorded after other. Anything is newer than nil.
func (v VersionInfo) IsNewerThan(other *VersionInfo) bool {
	if other == nil {
		return true
	}
	return v.Timestamp.After(other.Timestamp)
}

// HasSameContent reports whether both versions carry the same checksum.
func (v VersionInfo) HasSameContent(other *VersionInfo) bool {
	if other == nil {
		return false
	}
	return v.Checksum.Equal(other.Checksum)
}

// ValidatePath enforces the absolute path format: leading "/", no "..", no
// empty segments and no trailing "/" except for the root.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errs.Validationf("path must not be blank")
	}
	if !strings.HasPrefix(path, "/") {
		return errs.Validationf("path %q must be absolute", path)
	}
	if path == "/" {
		return nil
	}
	if strings.Contains(path, "//") {
		return errs.Validationf("path %q must not contain empty segments", path)
	}
	if strings.HasSuffix(path, "/") {
		return errs.Validationf("path %q must not end with a slash", path)
	}
	if strings.Contains(path, "..") {
		return errs.Validationf("path %q must not contain '..'", path)
	}
	return nil
}
