package authority

type Table struct {
	TableID      string       `yaml:"table_id"`
	TableVersion string       `yaml:"table_version"`
	Levels       []LevelEntry `yaml:"levels"`
	Actors       []ActorEntry `yaml:"actors"`
}

// LevelEntry defines one tier of the ordered authority enumeration and the
// decision types it permits.
type LevelEntry struct {
	Level   string   `yaml:"level"`
	Rank    int      `yaml:"rank"`
	Permits []string `yaml:"permits"`
}

type ActorEntry struct {
	ID    string `yaml:"id"`
	Level string `yaml:"level"`
}
