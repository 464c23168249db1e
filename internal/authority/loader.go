package authority

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hirewire/decree/internal/crypto"
)

type LoadedTable struct {
	Table Table
	Hash  string
	Bytes []byte
}

// LoadTable loads a YAML authority table and computes its hash from raw bytes.
func LoadTable(path string) (LoadedTable, error) {
	// #nosec G304 -- path comes from operator-configured authority table path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedTable{}, err
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return LoadedTable{}, err
	}
	if err := validateTable(t); err != nil {
		return LoadedTable{}, err
	}

	return LoadedTable{
		Table: t,
		Hash:  crypto.DigestWithPrefix(data),
		Bytes: data,
	}, nil
}

func validateTable(t Table) error {
	if len(t.Levels) == 0 {
		return fmt.Errorf("authority table has no levels")
	}
	seen := map[string]bool{}
	for _, lvl := range t.Levels {
		if lvl.Level == "" {
			return fmt.Errorf("authority level missing name")
		}
		if seen[lvl.Level] {
			return fmt.Errorf("duplicate authority level: %s", lvl.Level)
		}
		seen[lvl.Level] = true
	}
	for _, actor := range t.Actors {
		if !seen[actor.Level] {
			return fmt.Errorf("actor %s references unknown level: %s", actor.ID, actor.Level)
		}
	}
	return nil
}
