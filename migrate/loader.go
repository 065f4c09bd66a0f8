package migrate

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/dualtier/dtman/common"
	"github.com/dualtier/dtman/model"
	"github.com/hjson/hjson-go/v4"
	"github.com/pkg/errors"
)

var unitExtensions = []string{".hjson", ".json"}

// LoadUnits reads every migration unit definition from dir and returns
// them sorted by version. Unit files are hjson or json, one unit per file.
// The checksum is always derived from the up script; a checksum written in
// the file is ignored.
func LoadUnits(dir string) ([]model.MigrationUnit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read migration dir %s", dir)
	}

	var units []model.MigrationUnit
	versions := make(map[int64]string)
	ids := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !common.ArrayContains(unitExtensions, path.Ext(entry.Name())) {
			continue
		}
		unit, err := loadUnitFile(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if prev, ok := versions[unit.Version]; ok {
			return nil, errors.Errorf("duplicate version %d in %s and %s", unit.Version, prev, entry.Name())
		}
		if prev, ok := ids[unit.Id]; ok {
			return nil, errors.Errorf("duplicate unit id %s in %s and %s", unit.Id, prev, entry.Name())
		}
		versions[unit.Version] = entry.Name()
		ids[unit.Id] = entry.Name()
		units = append(units, unit)
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].Version < units[j].Version
	})
	return units, nil
}

func loadUnitFile(p string) (model.MigrationUnit, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return model.MigrationUnit{}, errors.Wrap(err, "")
	}
	var unit model.MigrationUnit
	if err = hjson.Unmarshal(data, &unit); err != nil {
		return model.MigrationUnit{}, errors.Wrapf(err, "parse %s", p)
	}
	if unit.Version <= 0 {
		return model.MigrationUnit{}, errors.Errorf("%s: version must be positive", p)
	}
	if strings.TrimSpace(unit.Up) == "" {
		return model.MigrationUnit{}, errors.Errorf("%s: empty up script", p)
	}
	if unit.Name == "" {
		unit.Name = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	if unit.Id == "" {
		unit.Id = fmt.Sprintf("%06d_%s", unit.Version, unit.Name)
	}
	unit.Checksum = common.Md5CheckSum(unit.Up)
	return unit, nil
}
