package imports

import (
	"fmt"
	"log/slog"

	"github.com/kyroslabs/vita-elf-create/internal/vitaelf"
)

// Kind distinguishes a function stub resolution from a variable one.
type Kind int

const (
	KindFunction Kind = iota
	KindVariable
)

// Resolution is the outcome of resolving one stub: either a fully bound
// export, or a miss recorded for diagnostics. Resolved is false whenever
// any lookup step in the chain (library, module, or target) came back
// empty; Library/Module/Target are only safe to read when resolved is true.
type Resolution struct {
	Stub   *vitaelf.Stub
	Kind   Kind
	Symbol string // the referencing symbol's name, or "unreferenced stub"

	Resolved  bool
	Library   *Library
	Module    *Module
	Target    string // resolved function or variable name
	TargetNID uint32
}

// Resolver binds every stub in a loaded ELF context against an ordered set
// of import databases.
type Resolver struct {
	logger    *slog.Logger
	databases []Database
}

// NewResolver builds a Resolver scanning databases in the given order: the
// first database whose FindLib succeeds for a given NID wins, matching
// spec.md §4.7's load-order-sensitive lookup.
func NewResolver(logger *slog.Logger, databases ...Database) *Resolver {
	return &Resolver{logger: logger, databases: databases}
}

// Resolve attempts to bind every fstub and vstub in ctx. It never aborts on
// a miss — resolution is best-effort so every failure is reported in one
// run — but returns false if any stub failed to resolve, propagating to the
// process exit status per spec.md §4.7.
func (r *Resolver) Resolve(ctx *vitaelf.Context) ([]Resolution, bool) {
	allResolved := true

	results := make([]Resolution, 0, len(ctx.FStubs)+len(ctx.VStubs))
	for i := range ctx.FStubs {
		res := r.resolveStub(&ctx.FStubs[i], KindFunction)
		if !res.Resolved {
			allResolved = false
		}
		results = append(results, res)
	}
	for i := range ctx.VStubs {
		res := r.resolveStub(&ctx.VStubs[i], KindVariable)
		if !res.Resolved {
			allResolved = false
		}
		results = append(results, res)
	}

	return results, allResolved
}

func (r *Resolver) resolveStub(stub *vitaelf.Stub, kind Kind) Resolution {
	symbolName := "unreferenced stub"
	if stub.Symbol != nil {
		symbolName = stub.Symbol.Name
	}

	res := Resolution{Stub: stub, Kind: kind, Symbol: symbolName}

	db, lib := r.findLib(stub.LibraryNID)
	if db == nil {
		r.logger.Warn("import resolution failed: unknown library NID",
			"symbol", symbolName,
			"libraryNID", fmtNID(stub.LibraryNID),
		)
		return res
	}

	mod, ok := db.FindModule(lib, stub.ModuleNID)
	if !ok {
		r.logger.Warn("import resolution failed: unknown module NID",
			"symbol", symbolName,
			"library", lib.Name,
			"moduleNID", fmtNID(stub.ModuleNID),
		)
		return res
	}

	var targetName string
	switch kind {
	case KindFunction:
		fn, ok := db.FindFunction(mod, stub.TargetNID)
		if !ok {
			r.logger.Warn("import resolution failed: unknown function NID",
				"symbol", symbolName,
				"library", lib.Name,
				"module", mod.Name,
				"targetNID", fmtNID(stub.TargetNID),
			)
			return res
		}
		targetName = fn.Name
	case KindVariable:
		v, ok := db.FindVariable(mod, stub.TargetNID)
		if !ok {
			r.logger.Warn("import resolution failed: unknown variable NID",
				"symbol", symbolName,
				"library", lib.Name,
				"module", mod.Name,
				"targetNID", fmtNID(stub.TargetNID),
			)
			return res
		}
		targetName = v.Name
	}

	res.Resolved = true
	res.Library = lib
	res.Module = mod
	res.Target = targetName
	res.TargetNID = stub.TargetNID
	return res
}

// findLib scans the configured databases in order and returns both the
// library and the database that produced it: every subsequent lookup for
// this stub stays within that same database, since a Library handle is
// only meaningful to the database that vended it.
func (r *Resolver) findLib(nid uint32) (Database, *Library) {
	for _, db := range r.databases {
		if lib, ok := db.FindLib(nid); ok {
			return db, lib
		}
	}
	return nil, nil
}

func fmtNID(nid uint32) string {
	return fmt.Sprintf("0x%08x", nid)
}
