// Package domain defines the core business entities of the
// classification pipeline: taxonomy tags, classification results, and
// async jobs.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// TagType classifies a taxonomy tag into one of the seven categories
// recognized by the classification rules.
type TagType string

// Possible tag type values
const (
	TagTypeHorizon  TagType = "Horizon"
	TagTypePractice TagType = "Practice"
	TagTypeStream   TagType = "Stream"
	TagTypeRole     TagType = "Role"
	TagTypeVendor   TagType = "Vendor"
	TagTypeProduct  TagType = "Product"
	TagTypeTopic    TagType = "Topic"
)

// MaxTagAliases is the maximum number of aliases a tag may carry.
const MaxTagAliases = 4

// HorizonNames enumerates the only valid names for Horizon tags.
var HorizonNames = []string{"Solve", "Plan", "Explore"}

// Common validation errors for Tag
var (
	ErrEmptyTagID        = errors.New("tag ID cannot be empty")
	ErrEmptyTagName      = errors.New("tag name cannot be empty")
	ErrEmptyTagShortForm = errors.New("tag short form cannot be empty")
	ErrInvalidTagType    = errors.New("invalid tag type")
	ErrTooManyAliases    = errors.New("tag has too many aliases")
	ErrDuplicateAlias    = errors.New("tag has duplicate aliases")
	ErrInvalidHorizon    = errors.New("invalid Horizon tag name")
)

// Tag represents a single entry in the external taxonomy. A Tag is
// immutable once it is part of a published snapshot; identity is
// carried by ID, which is the stable identifier assigned by the
// external source.
type Tag struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	ShortForm   string   `json:"short_form"`
	Type        TagType  `json:"type"`
	Description string   `json:"description,omitempty"`
}

// Validate checks if the Tag has valid data.
// Returns an error if any field fails validation.
func (t Tag) Validate() error {
	if t.ID == "" {
		return ErrEmptyTagID
	}

	if t.Name == "" {
		return ErrEmptyTagName
	}

	if t.ShortForm == "" {
		return ErrEmptyTagShortForm
	}

	if !isValidTagType(t.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidTagType, t.Type)
	}

	if len(t.Aliases) > MaxTagAliases {
		return fmt.Errorf("%w: %d aliases, maximum is %d", ErrTooManyAliases, len(t.Aliases), MaxTagAliases)
	}

	seen := make(map[string]struct{}, len(t.Aliases))
	for _, alias := range t.Aliases {
		key := strings.ToLower(strings.TrimSpace(alias))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateAlias, alias)
		}
		seen[key] = struct{}{}
	}

	if t.Type == TagTypeHorizon && !isHorizonName(t.Name) {
		return fmt.Errorf("%w: %q (must be Solve, Plan, or Explore)", ErrInvalidHorizon, t.Name)
	}

	return nil
}

// Equal reports whether two tags carry identical field values.
// Aliases are compared in order, as delivered by the source.
func (t Tag) Equal(other Tag) bool {
	return len(t.ChangedFields(other)) == 0
}

// ChangedFields returns the names of the fields that differ between
// t and other. An empty result means the tags are identical.
func (t Tag) ChangedFields(other Tag) []string {
	var changed []string

	if t.Name != other.Name {
		changed = append(changed, "name")
	}
	if !equalAliases(t.Aliases, other.Aliases) {
		changed = append(changed, "aliases")
	}
	if t.ShortForm != other.ShortForm {
		changed = append(changed, "short_form")
	}
	if t.Type != other.Type {
		changed = append(changed, "type")
	}
	if t.Description != other.Description {
		changed = append(changed, "description")
	}

	return changed
}

func equalAliases(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isValidTagType checks if the given type is one of the seven
// enumerated kinds.
func isValidTagType(t TagType) bool {
	switch t {
	case TagTypeHorizon, TagTypePractice, TagTypeStream, TagTypeRole,
		TagTypeVendor, TagTypeProduct, TagTypeTopic:
		return true
	default:
		return false
	}
}

func isHorizonName(name string) bool {
	for _, n := range HorizonNames {
		if name == n {
			return true
		}
	}
	return false
}
