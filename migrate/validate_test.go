package migrate

import (
	"testing"

	"github.com/dualtier/dtman/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateAllowsRegularDDL(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "CREATE TABLE orders (id TEXT PRIMARY KEY); CREATE INDEX idx_orders ON orders (id);",
	}})
	assert.NoError(t, err)
}

func TestValidateRejectsDropTable(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "DROP TABLE orders;",
	}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "drop table")
}

func TestValidateRejectsTruncate(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "TRUNCATE orders;",
	}})
	assert.Error(t, err)
}

func TestValidateUnqualifiedDelete(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "DELETE FROM orders;",
	}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unqualified delete")

	err = ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "DELETE FROM orders WHERE legacy = true;",
	}})
	assert.NoError(t, err)
}

func TestValidateRejectsDestructiveRollbackScript(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "CREATE TABLE orders (id TEXT PRIMARY KEY);",
		Down:    "TRUNCATE orders;",
	}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "truncate")

	// the rename-instead-of-drop pattern stays allowed
	err = ValidateUnits([]model.MigrationUnit{{
		Id:      "a",
		Version: 1,
		Up:      "CREATE TABLE orders (id TEXT PRIMARY KEY);",
		Down:    "ALTER TABLE orders RENAME TO orders_retired;",
	}})
	assert.NoError(t, err)
}

func TestValidateBreakingUnitMayDrop(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{{
		Id:       "a",
		Version:  1,
		Up:       "DROP TABLE legacy_orders;",
		Breaking: true,
	}})
	assert.NoError(t, err)
}

func TestValidateCatchesCycles(t *testing.T) {
	err := ValidateUnits([]model.MigrationUnit{
		{Id: "a", Version: 1, Up: "SELECT 1", Depends: []string{"b"}},
		{Id: "b", Version: 2, Up: "SELECT 1", Depends: []string{"a"}},
	})
	assert.Error(t, err)
}
