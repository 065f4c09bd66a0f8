package migrate

import (
	"regexp"
	"strings"

	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/pkg/errors"
)

// Statements on the deny list destroy data irrecoverably. A unit may only
// carry them when it is explicitly marked breaking.
var denyList = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"drop table", regexp.MustCompile(`(?is)\bdrop\s+table\b`)},
	{"drop database", regexp.MustCompile(`(?is)\bdrop\s+(database|schema)\b`)},
	{"truncate", regexp.MustCompile(`(?is)\btruncate\b`)},
	{"unqualified delete", regexp.MustCompile(`(?is)\bdelete\s+from\s+\S+\s*$`)},
}

// ValidateUnits checks the whole unit set before anything executes:
// dependencies must resolve, the graph must be acyclic, and no
// non-breaking unit may carry a deny-listed statement.
func ValidateUnits(units []model.MigrationUnit) error {
	if _, err := TopoSort(units); err != nil {
		return err
	}
	for _, unit := range units {
		if err := validateScript(unit, unit.Up); err != nil {
			return err
		}
		// a destructive down script would only surface at rollback time,
		// which is the worst moment to find out
		if err := validateScript(unit, unit.Down); err != nil {
			return err
		}
	}
	return nil
}

func validateScript(unit model.MigrationUnit, script string) error {
	for _, stmt := range splitStatements(script) {
		for _, deny := range denyList {
			if !deny.pattern.MatchString(stmt) {
				continue
			}
			if unit.Breaking {
				log.Logger.Warnf("unit %s is breaking and carries a %s statement", unit.Id, deny.name)
				continue
			}
			return errors.Errorf("unit %s: %s statement rejected, mark the unit breaking to allow it", unit.Id, deny.name)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
