package discovery

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func extract(t *testing.T, files map[string]string) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, Extract(writeZip(t, files), dest, Limits{}))
	return dest
}

var defaults = Options{DefaultProfile: appModels.ProfileDistilledSpirits, MaxItems: 10}

type DiscoverySuite struct {
	suite.Suite
}

func TestDiscoverySuite(t *testing.T) {
	suite.Run(t, new(DiscoverySuite))
}

func (s *DiscoverySuite) TestCSVManifest() {
	root := extract(s.T(), map[string]string{
		"upload/manifest.csv": "client_label_id,Brand Name,class_type,abv,regulatory_profile,notes\n" +
			"L-1,Copper Still,Straight Bourbon,45%,,\n" +
			"L-2,Old Mill,Gin,40%,,no back\n" +
			"\n" +
			"L-3,Vine & Co,Red Wine,13%,wine,\n",
		"upload/images/front-copper-still-straight-bourbon.jpg": "f1",
		"upload/images/back-copper-still-straight-bourbon.JPG":  "b1",
		"upload/images/front-old-mill-gin.png":                  "f2",
		"upload/images/front-vine-co-red-wine.jpeg":             "f3",
		"upload/images/back-vine-co-red-wine.jpeg":              "b3",
		"upload/images/extra2-vine-co-red-wine.jpeg":            "e3",
		"__MACOSX/upload/._manifest.csv":                        "junk",
	})

	items, err := Discover(root, defaults)
	s.Require().NoError(err)
	s.Require().Len(items, 3)

	s.Equal("L-1", items[0].ClientLabelID)
	s.Equal("Copper Still", items[0].Expected.BrandName)
	s.Equal("45%", items[0].Expected.AlcoholContent)
	s.Equal(appModels.ProfileDistilledSpirits, items[0].RegulatoryProfile)
	s.Require().Len(items[0].Images, 2)
	s.Equal(models.RoleFront, items[0].Images[0].Role)
	s.Equal(models.RoleBack, items[0].Images[1].Role)

	s.Len(items[1].Images, 1)
	s.Equal("no back", items[1].Expected.Extra["notes"])

	s.Equal(appModels.ProfileWine, items[2].RegulatoryProfile)
	s.Require().Len(items[2].Images, 3)
	s.Equal(models.RoleExtra, items[2].Images[2].Role)
}

func (s *DiscoverySuite) TestLabelDirectories() {
	root := extract(s.T(), map[string]string{
		"labels/b-gin/label.txt":          "brandName: Old Mill\nclass_type: Gin\nalcohol content: 40\n",
		"labels/b-gin/front-1.png":        "f",
		"labels/a-bourbon/label.txt":      "id: L-9\nbrand_name: Copper Still\nclass_type: Bourbon\nnet_contents: 750 mL\nage_statement: 4 years\n",
		"labels/a-bourbon/front-main.jpg": "f",
		"labels/a-bourbon/back-main.jpg":  "b",
		"labels/a-bourbon/extra.jpg":      "e",
		"labels/a-bourbon/readme.md":      "ignored",
	})

	items, err := Discover(root, defaults)
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	s.Equal("L-9", items[0].ClientLabelID)
	s.Equal("750 mL", items[0].Expected.NetContents)
	s.Equal("4 years", items[0].Expected.Extra["age_statement"])
	s.Len(items[0].Images, 3)

	s.Equal("b-gin", items[1].ClientLabelID)
	s.Equal("Old Mill", items[1].Expected.BrandName)
	s.Equal("40", items[1].Expected.AlcoholContent)
	s.Len(items[1].Images, 1)
}

func (s *DiscoverySuite) TestFailures() {
	tests := []struct {
		name  string
		files map[string]string
		opts  Options
		code  string
	}{
		{"empty manifest", map[string]string{"manifest.csv": ""}, defaults, models.CodeManifestParseFailed},
		{"missing columns", map[string]string{"manifest.csv": "brand_name\nA\n"}, defaults, models.CodeManifestParseFailed},
		{"row without brand", map[string]string{"manifest.csv": "brand_name,class_type\n,Gin\n"}, defaults, models.CodeManifestParseFailed},
		{"ragged row", map[string]string{"manifest.csv": "brand_name,class_type\nA,B,C\n"}, defaults, models.CodeManifestParseFailed},
		{"bad profile", map[string]string{"manifest.csv": "brand_name,class_type,profile\nA,B,cider\n"}, defaults, models.CodeManifestParseFailed},
		{"bad yaml", map[string]string{"x/label.txt": "brand: [unclosed\n"}, defaults, models.CodeManifestParseFailed},
		{"header only", map[string]string{"manifest.csv": "brand_name,class_type\n"}, defaults, models.CodeNoItemsDiscovered},
		{"nothing recognisable", map[string]string{"photo.jpg": "x"}, defaults, models.CodeNoItemsDiscovered},
		{"over the cap", map[string]string{"manifest.csv": "brand_name,class_type\nA,B\nC,D\nE,F\n"},
			Options{DefaultProfile: appModels.ProfileWine, MaxItems: 2}, models.CodeBatchSizeOutOfRange},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := Discover(extract(s.T(), tt.files), tt.opts)
			s.Require().Error(err)
			s.Equal(tt.code, CodeOf(err))
		})
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "/abs/evil.txt"} {
		t.Run(name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "staging")
			err := Extract(writeZip(t, map[string]string{name: "x"}), dest, Limits{})
			require.Error(t, err)
			assert.Equal(t, models.CodeArchiveInvalid, CodeOf(err))
			_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestExtractLimits(t *testing.T) {
	files := map[string]string{"a.txt": "0123456789", "b.txt": "0123456789"}

	err := Extract(writeZip(t, files), t.TempDir(), Limits{MaxFiles: 1})
	assert.Equal(t, models.CodeBatchSizeOutOfRange, CodeOf(err))

	err = Extract(writeZip(t, files), t.TempDir(), Limits{MaxBytes: 15})
	assert.Equal(t, models.CodeBatchSizeOutOfRange, CodeOf(err))

	assert.NoError(t, Extract(writeZip(t, files), t.TempDir(), Limits{MaxFiles: 2, MaxBytes: 20}))
}

func TestExtractRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))
	assert.Equal(t, models.CodeArchiveInvalid, CodeOf(Extract(path, t.TempDir(), Limits{})))
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Copper Still":     "copper-still",
		"  Vine & Co.  ":   "vine-co",
		"Straight Bourbon": "straight-bourbon",
		"100% Agave":       "100-agave",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Brand Name":    "brand_name",
		"brandName":     "brand_name",
		"class-type":    "class_type",
		"ABV":           "abv",
		"clientLabelID": "client_label_id",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeKey(in), in)
	}
}
