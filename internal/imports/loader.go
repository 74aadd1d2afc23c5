package imports

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// LoadDatabases loads every path concurrently, then returns the resulting
// databases back in argument order: spec.md §4.7 resolves libraries by
// scanning databases "in order", so parallel loading must never be allowed
// to leak into the resolution order, only speed up the loading itself.
func LoadDatabases(paths []string) ([]Database, error) {
	databases := make([]Database, len(paths))

	var eg errgroup.Group
	for i, path := range paths {
		eg.Go(func() error {
			db, err := LoadJSONFile(path)
			if err != nil {
				return fmt.Errorf("database %d (%s): %w", i, path, err)
			}
			databases[i] = db
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return databases, nil
}
