// Package discovery turns an uploaded label archive into batch item inputs.
//
// Two layouts are understood. A manifest.csv anywhere in the archive selects
// CSV mode: one row per label, joined to images named
// {role}-{brand-slug}-{class-slug}.{ext}. Otherwise every directory holding a
// label.txt YAML manifest becomes one item, with front-*, back-* and extra*
// images taken from the same directory.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
)

const (
	manifestCSV   = "manifest.csv"
	manifestLabel = "label.txt"
)

// Error is a discovery failure. Any Error fails the whole job.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the discovery code carried by err, or internal_error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return models.CodeInternal
}

// Options bounds a discovery run.
type Options struct {
	DefaultProfile appModels.RegulatoryProfile
	MaxItems       int
}

// Discover walks an extracted archive rooted at root.
func Discover(root string, opts Options) ([]models.ItemInput, error) {
	manifest, err := findManifest(root)
	if err != nil {
		return nil, newError(models.CodeArchiveInvalid, "walk staging area: %v", err)
	}

	var items []models.ItemInput
	if manifest != "" {
		items, err = discoverCSV(manifest, opts.DefaultProfile)
	} else {
		items, err = discoverDirectories(root, opts.DefaultProfile)
	}
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, newError(models.CodeNoItemsDiscovered, "archive contains no label items")
	}
	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		return nil, newError(models.CodeBatchSizeOutOfRange, "archive contains %d items, limit is %d", len(items), opts.MaxItems)
	}
	return items, nil
}

// findManifest returns the shallowest manifest.csv under root, or "".
func findManifest(root string) (string, error) {
	var found string
	depth := -1
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if skip(d.Name()) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), manifestCSV) {
			return nil
		}
		if n := strings.Count(path, string(filepath.Separator)); depth < 0 || n < depth {
			found, depth = path, n
		}
		return nil
	})
	return found, err
}

// skip hides OS metadata such as __MACOSX and dotfiles.
func skip(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff"}

func isImage(name string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(name)))
}

// roleOf classifies an image file name within a label directory.
func roleOf(name string) (models.ImageRole, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "front-"):
		return models.RoleFront, true
	case strings.HasPrefix(lower, "back-"):
		return models.RoleBack, true
	case strings.HasPrefix(lower, "extra"):
		return models.RoleExtra, true
	}
	return "", false
}

// Slug lowercases s and collapses every run of non-alphanumerics into one dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// normalizeKey maps "Brand Name", "brand-name" and "brandName" to brand_name.
func normalizeKey(k string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.TrimSpace(k) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if prev != '_' {
				b.WriteByte('_')
			}
			r = '_'
		case r >= 'A' && r <= 'Z':
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// fields collects one label's key/values regardless of layout.
type fields struct {
	clientLabelID string
	profile       string
	expected      models.Expected
}

func (f *fields) set(key, value string) {
	value = strings.TrimSpace(value)
	switch normalizeKey(key) {
	case "client_label_id", "label_id", "id":
		f.clientLabelID = value
	case "regulatory_profile", "profile":
		f.profile = value
	case "brand_name", "brand":
		f.expected.BrandName = value
	case "class_type", "class":
		f.expected.ClassType = value
	case "alcohol_content", "abv":
		f.expected.AlcoholContent = value
	case "net_contents":
		f.expected.NetContents = value
	default:
		if value == "" {
			return
		}
		if f.expected.Extra == nil {
			f.expected.Extra = map[string]string{}
		}
		f.expected.Extra[normalizeKey(key)] = value
	}
}

func (f *fields) input(where string, def appModels.RegulatoryProfile, images []models.Image) (models.ItemInput, error) {
	profile := def
	if f.profile != "" {
		profile = appModels.RegulatoryProfile(strings.ToLower(f.profile))
		if !profile.IsValid() {
			return models.ItemInput{}, newError(models.CodeManifestParseFailed, "%s: unknown regulatory profile %q", where, f.profile)
		}
	}
	return models.ItemInput{
		ClientLabelID:     f.clientLabelID,
		RegulatoryProfile: profile,
		Expected:          f.expected,
		Images:            images,
	}, nil
}
