package migrate

import (
	"testing"

	"github.com/dualtier/dtman/model"
	"github.com/stretchr/testify/assert"
)

func unit(id string, version int64, depends ...string) model.MigrationUnit {
	return model.MigrationUnit{Id: id, Version: version, Depends: depends}
}

func TestTopoSortRespectsDependencies(t *testing.T) {
	units := []model.MigrationUnit{
		unit("c", 3, "a", "b"),
		unit("a", 1),
		unit("b", 2, "a"),
	}
	ordered, err := TopoSort(units)
	assert.NoError(t, err)
	assert.Len(t, ordered, 3)
	assert.Equal(t, "a", ordered[0].Id)
	assert.Equal(t, "b", ordered[1].Id)
	assert.Equal(t, "c", ordered[2].Id)
}

func TestTopoSortVersionTieBreak(t *testing.T) {
	units := []model.MigrationUnit{
		unit("z", 2),
		unit("y", 3),
		unit("x", 1),
	}
	ordered, err := TopoSort(units)
	assert.NoError(t, err)
	assert.Equal(t, "x", ordered[0].Id)
	assert.Equal(t, "z", ordered[1].Id)
	assert.Equal(t, "y", ordered[2].Id)
}

func TestTopoSortRejectsCycle(t *testing.T) {
	units := []model.MigrationUnit{
		unit("a", 1, "b"),
		unit("b", 2, "a"),
	}
	_, err := TopoSort(units)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopoSortRejectsSelfDependency(t *testing.T) {
	_, err := TopoSort([]model.MigrationUnit{unit("a", 1, "a")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopoSortUnknownDependency(t *testing.T) {
	_, err := TopoSort([]model.MigrationUnit{unit("a", 1, "ghost")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency")
}

func TestLayersGroupIndependentUnits(t *testing.T) {
	units := []model.MigrationUnit{
		unit("a", 1),
		unit("b", 2),
		unit("c", 3, "a"),
		unit("d", 4, "b", "c"),
	}
	ordered, err := TopoSort(units)
	assert.NoError(t, err)

	layers := Layers(ordered)
	assert.Len(t, layers, 3)
	assert.Len(t, layers[0], 2)
	assert.Equal(t, "c", layers[1][0].Id)
	assert.Equal(t, "d", layers[2][0].Id)
}
