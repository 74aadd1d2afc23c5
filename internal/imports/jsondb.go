package imports

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
)

// schemaConstraint is the range of document schema versions this loader
// understands. A document outside it is rejected rather than silently
// misparsed: a 2.x document may have renamed or restructured fields this
// loader doesn't know about.
var schemaConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint(">= 1.0.0, < 2.0.0")
	if err != nil {
		panic(fmt.Sprintf("invalid schema constraint: %v", err))
	}
	return c
}()

var (
	errUnsupportedSchema = errors.New("unsupported import database schema version")
)

type jsonFunction struct {
	Name string `json:"name"`
	NID  uint32 `json:"nid"`
}

type jsonVariable struct {
	Name string `json:"name"`
	NID  uint32 `json:"nid"`
}

type jsonModule struct {
	Name      string         `json:"name"`
	NID       uint32         `json:"nid"`
	Functions []jsonFunction `json:"functions"`
	Variables []jsonVariable `json:"variables"`
}

type jsonLibrary struct {
	Name    string       `json:"name"`
	NID     uint32       `json:"nid"`
	Modules []jsonModule `json:"modules"`
}

type jsonDocument struct {
	SchemaVersion string        `json:"schema_version"`
	Libraries     []jsonLibrary `json:"libraries"`
}

// JSONDatabase is a Database backed by a single parsed JSON document,
// indexed by NID for O(1) lookups during resolution.
type JSONDatabase struct {
	libraries map[uint32]*Library
}

// LoadJSONFile opens path and parses it as an import database document.
func LoadJSONFile(path string) (*JSONDatabase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import database %q: %w", path, err)
	}
	defer f.Close()

	db, err := LoadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("loading import database %q: %w", path, err)
	}
	return db, nil
}

// LoadJSON parses an import database document from r, rejecting any
// schema_version outside the range this loader understands.
func LoadJSON(r io.Reader) (*JSONDatabase, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding import database: %w", err)
	}

	version, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("parsing schema_version %q: %w", doc.SchemaVersion, err)
	}
	if !schemaConstraint.Check(version) {
		return nil, fmt.Errorf("schema_version %s: %w", version, errUnsupportedSchema)
	}

	db := &JSONDatabase{libraries: make(map[uint32]*Library, len(doc.Libraries))}

	for _, lib := range doc.Libraries {
		modules := make(map[uint32]*Module, len(lib.Modules))
		for _, mod := range lib.Modules {
			functions := make(map[uint32]*Function, len(mod.Functions))
			for _, fn := range mod.Functions {
				functions[fn.NID] = &Function{Name: fn.Name, NID: fn.NID}
			}
			variables := make(map[uint32]*Variable, len(mod.Variables))
			for _, v := range mod.Variables {
				variables[v.NID] = &Variable{Name: v.Name, NID: v.NID}
			}
			modules[mod.NID] = &Module{
				Name:      mod.Name,
				NID:       mod.NID,
				Functions: functions,
				Variables: variables,
			}
		}
		db.libraries[lib.NID] = &Library{Name: lib.Name, NID: lib.NID, Modules: modules}
	}

	return db, nil
}

func (db *JSONDatabase) FindLib(nid uint32) (*Library, bool) {
	lib, ok := db.libraries[nid]
	return lib, ok
}

func (db *JSONDatabase) FindModule(lib *Library, nid uint32) (*Module, bool) {
	mod, ok := lib.Modules[nid]
	return mod, ok
}

func (db *JSONDatabase) FindFunction(mod *Module, nid uint32) (*Function, bool) {
	fn, ok := mod.Functions[nid]
	return fn, ok
}

func (db *JSONDatabase) FindVariable(mod *Module, nid uint32) (*Variable, bool) {
	v, ok := mod.Variables[nid]
	return v, ok
}
