package platform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const maxSlugLength = 63

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non-alphanumerics into a
// single hyphen. "ABC Motors!!" becomes "abc-motors".
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// SlugTaken reports whether a slug is already assigned.
type SlugTaken func(ctx context.Context, slug string) (bool, error)

// UniqueSlug picks the first free slug from name, then name-city, then
// name-2, name-3 and so on.
func UniqueSlug(ctx context.Context, name, city string, taken SlugTaken) (string, error) {
	base := Slugify(name)
	if base == "" {
		return "", &ValidationError{Field: "name", Value: name, Reason: "contains no letters or digits", Err: ErrInvalidLabel}
	}

	candidates := []string{base}
	if c := Slugify(city); c != "" {
		candidates = append(candidates, Slugify(base+"-"+c))
	}
	for _, candidate := range candidates {
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
	}

	for n := 2; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		suffix := fmt.Sprintf("-%d", n)
		stem := base
		if len(stem)+len(suffix) > maxSlugLength {
			stem = strings.TrimRight(stem[:maxSlugLength-len(suffix)], "-")
		}
		candidate := stem + suffix
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
	}
}
