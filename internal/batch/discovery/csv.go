package discovery

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
)

func discoverCSV(manifest string, def appModels.RegulatoryProfile) ([]models.ItemInput, error) {
	f, err := os.Open(manifest)
	if err != nil {
		return nil, newError(models.CodeManifestParseFailed, "open manifest: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, newError(models.CodeManifestParseFailed, "manifest is empty")
	}
	if err != nil {
		return nil, newError(models.CodeManifestParseFailed, "read manifest header: %v", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalizeKey(h)
	}
	if !slices.Contains(keys, "brand_name") || !slices.Contains(keys, "class_type") {
		return nil, newError(models.CodeManifestParseFailed, "manifest header needs brand_name and class_type columns")
	}

	images, err := indexImages(filepath.Dir(manifest))
	if err != nil {
		return nil, newError(models.CodeArchiveInvalid, "index images: %v", err)
	}

	var items []models.ItemInput
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newError(models.CodeManifestParseFailed, "manifest line %d: %v", line, err)
		}
		if blank(row) {
			continue
		}
		var fl fields
		for i, v := range row {
			fl.set(header[i], v)
		}
		if fl.expected.BrandName == "" || fl.expected.ClassType == "" {
			return nil, newError(models.CodeManifestParseFailed, "manifest line %d: brand_name and class_type are required", line)
		}
		key := Slug(fl.expected.BrandName) + "-" + Slug(fl.expected.ClassType)
		item, err := fl.input("manifest line "+strconv.Itoa(line), def, images[key])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// indexImages maps "{brand-slug}-{class-slug}" to the images named after it.
func indexImages(dir string) (map[string][]models.Image, error) {
	index := map[string][]models.Image{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if skip(d.Name()) && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isImage(d.Name()) {
			return nil
		}
		role, ok := roleOf(d.Name())
		if !ok {
			return nil
		}
		stem := strings.ToLower(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
		_, rest, ok := strings.Cut(stem, "-")
		if !ok {
			return nil
		}
		index[rest] = append(index[rest], models.Image{Role: role, Path: path})
		return nil
	})
	for _, imgs := range index {
		sortImages(imgs)
	}
	return index, err
}

func sortImages(imgs []models.Image) {
	rank := map[models.ImageRole]int{models.RoleFront: 0, models.RoleBack: 1, models.RoleExtra: 2}
	slices.SortFunc(imgs, func(a, b models.Image) int {
		if d := rank[a.Role] - rank[b.Role]; d != 0 {
			return d
		}
		return strings.Compare(a.Path, b.Path)
	})
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
