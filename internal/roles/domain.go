package roles

import (
	"time"

	"golang.org/x/text/language"
)

// Role is a named permission grouping with an activation flag and a display
// privilege level. System roles are protected: they cannot be deleted and
// only super-admins may deactivate them.
type Role struct {
	ID             string
	Name           string
	LocalizedNames map[string]string
	Level          int
	IsSystem       bool
	IsActive       bool
	Permissions    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName resolves the localized name best matching the preferred
// languages, falling back to the default name.
func (r Role) DisplayName(preferred ...language.Tag) string {
	if len(r.LocalizedNames) == 0 || len(preferred) == 0 {
		return r.Name
	}
	tags := make([]language.Tag, 0, len(r.LocalizedNames)+1)
	names := make([]string, 0, len(r.LocalizedNames)+1)
	// The default name anchors the matcher so unmatchable preferences fall
	// back to it.
	tags = append(tags, language.Und)
	names = append(names, r.Name)
	for code, name := range r.LocalizedNames {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		names = append(names, name)
	}
	if len(tags) == 1 {
		return r.Name
	}
	_, index, conf := language.NewMatcher(tags).Match(preferred...)
	if conf == language.No || index < 0 || index >= len(names) {
		return r.Name
	}
	return names[index]
}

// Actor identifies the administrator performing a catalog mutation.
// SuperAdmin is derived from the admin:system_roles permission by the
// handler layer.
type Actor struct {
	UserID     int64
	SuperAdmin bool
}
