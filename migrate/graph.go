package migrate

import (
	"sort"
	"strings"

	"github.com/dualtier/dtman/model"
	"github.com/pkg/errors"
)

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// TopoSort orders units so every dependency precedes its dependents,
// breaking ties by version. A dependency cycle or a reference to an
// unknown unit id is an error.
func TopoSort(units []model.MigrationUnit) ([]model.MigrationUnit, error) {
	byId := make(map[string]model.MigrationUnit, len(units))
	for _, unit := range units {
		byId[unit.Id] = unit
	}

	color := make(map[string]int, len(units))
	ordered := make([]model.MigrationUnit, 0, len(units))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case colorBlack:
			return nil
		case colorGray:
			return errors.Errorf("dependency cycle: %s -> %s", strings.Join(stack, " -> "), id)
		}
		unit, ok := byId[id]
		if !ok {
			return errors.Errorf("unknown dependency %s", id)
		}
		color[id] = colorGray
		stack = append(stack, id)

		deps := append([]string(nil), unit.Depends...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = colorBlack
		ordered = append(ordered, unit)
		return nil
	}

	roots := append([]model.MigrationUnit(nil), units...)
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Version < roots[j].Version
	})
	for _, unit := range roots {
		if err := visit(unit.Id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Layers groups topologically sorted units into waves where every unit's
// dependencies live in an earlier wave. Units inside one wave have no
// dependency path between them and may apply concurrently.
func Layers(ordered []model.MigrationUnit) [][]model.MigrationUnit {
	depth := make(map[string]int, len(ordered))
	var layers [][]model.MigrationUnit
	for _, unit := range ordered {
		d := 0
		for _, dep := range unit.Depends {
			if depDepth, ok := depth[dep]; ok && depDepth+1 > d {
				d = depDepth + 1
			}
		}
		depth[unit.Id] = d
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], unit)
	}
	return layers
}
