package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
)

func discoverDirectories(root string, def appModels.RegulatoryProfile) ([]models.ItemInput, error) {
	var dirs []string
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
		if !d.IsDir() && d.Name() == manifestLabel {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, newError(models.CodeArchiveInvalid, "walk staging area: %v", err)
	}

	// WalkDir visits in lexical order, so items come out sorted by directory.
	items := make([]models.ItemInput, 0, len(dirs))
	for _, dir := range dirs {
		item, err := readLabelDir(dir, def)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func readLabelDir(dir string, def appModels.RegulatoryProfile) (models.ItemInput, error) {
	where := filepath.Base(dir) + "/" + manifestLabel
	raw, err := os.ReadFile(filepath.Join(dir, manifestLabel))
	if err != nil {
		return models.ItemInput{}, newError(models.CodeManifestParseFailed, "%s: %v", where, err)
	}
	var kv map[string]any
	if err := yaml.Unmarshal(raw, &kv); err != nil {
		return models.ItemInput{}, newError(models.CodeManifestParseFailed, "%s: %v", where, err)
	}

	var fl fields
	for k, v := range kv {
		if v == nil {
			continue
		}
		fl.set(k, fmt.Sprint(v))
	}
	if fl.clientLabelID == "" {
		fl.clientLabelID = filepath.Base(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return models.ItemInput{}, newError(models.CodeArchiveInvalid, "%s: %v", where, err)
	}
	var images []models.Image
	for _, e := range entries {
		if e.IsDir() || skip(e.Name()) || !isImage(e.Name()) {
			continue
		}
		if role, ok := roleOf(e.Name()); ok {
			images = append(images, models.Image{Role: role, Path: filepath.Join(dir, e.Name())})
		}
	}
	sortImages(images)
	return fl.input(where, def, images)
}
