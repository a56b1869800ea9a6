package source

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// Manifest overrides the source path of individual categories.
//
//	sources:
//	  farmers_market: markets/2024.xlsx
//	  fire_house: /srv/open-data/firehouses.csv
//
// Relative paths resolve against the manifest's directory.
type Manifest struct {
	Sources map[domain.Category]string `yaml:"sources"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, eris.Wrapf(err, "read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, eris.Wrapf(err, "parse manifest %s", path)
	}

	base := filepath.Dir(path)
	for c, p := range m.Sources {
		if !c.Valid() {
			return Manifest{}, eris.Errorf("manifest %s: unknown category %q", path, c)
		}
		if p == "" {
			return Manifest{}, eris.Errorf("manifest %s: empty path for %s", path, c)
		}
		if !filepath.IsAbs(p) {
			m.Sources[c] = filepath.Join(base, p)
		}
	}
	return m, nil
}
