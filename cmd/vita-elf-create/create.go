package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyroslabs/vita-elf-create/internal/imports"
	"github.com/kyroslabs/vita-elf-create/internal/sceimage"
	"github.com/kyroslabs/vita-elf-create/internal/vitaelf"
)

// errResolutionIncomplete is returned (after the output module has still
// been written) when at least one stub failed to resolve against every
// configured import database, matching the original tool's overall exit
// status: a partial module is useful for inspection, but the run itself
// did not fully succeed.
var errResolutionIncomplete = fmt.Errorf("one or more imports failed to resolve")

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		outputPath        string
		moduleNID         uint32
		extraDatabases    []string
		noDefaultDatabase bool
	)

	cmd := &cobra.Command{
		Use:   "create <input-elf>",
		Short: "Create a PS Vita SCE module from a relocatable ELF",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			inputPath := args[0]

			if outputPath == "" {
				outputPath = defaultOutputPath(inputPath)
			}

			configured := make([]string, 0, len(opts.config.ImportDatabases)+len(extraDatabases))
			for _, db := range opts.config.ImportDatabases {
				configured = append(configured, db.Path)
			}
			configured = append(configured, extraDatabases...)

			databasePaths, err := resolveDatabasePaths(configured, noDefaultDatabase)
			if err != nil {
				return fmt.Errorf("resolving import database paths: %w", err)
			}
			if len(databasePaths) == 0 {
				return fmt.Errorf("no import databases configured: pass --database or place JSON databases next to the executable")
			}

			return runCreate(opts, createParams{
				inputPath:     inputPath,
				outputPath:    outputPath,
				moduleName:    opts.config.ModuleName,
				moduleNID:     moduleNID,
				databasePaths: databasePaths,
				report:        opts.config.Report,
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path to the output SCE-formatted ELF (default: <input>.sce.elf)")
	cmd.Flags().Uint32Var(&moduleNID, "module-nid", 0, "NID to assign to this module in its own module-info header")
	cmd.Flags().StringArrayVar(&extraDatabases, "database", nil, "Additional import-database JSON file, scanned after the defaults (repeatable)")
	cmd.Flags().BoolVar(&noDefaultDatabase, "no-default-databases", false, "Skip discovery of the stock import databases shipped next to the executable")

	return cmd
}

// createParams collects everything runCreate needs, decoupled from the
// cobra flag variables so the orchestration logic is independently
// testable.
type createParams struct {
	inputPath     string
	outputPath    string
	moduleName    string
	moduleNID     uint32
	databasePaths []string
	report        string
}

// runCreate implements spec.md §4.8's pipeline end to end: load the ELF,
// load the import databases, resolve every stub, hand off to sceimage to
// synthesize the module-info/import/relocation tables, and rewrite the
// output ELF. Every stage logs its own summary before handing off to the
// next, matching the original tool's per-stage diagnostic output.
func runCreate(opts *rootOptions, params createParams) error {
	input, err := os.Open(params.inputPath)
	if err != nil {
		return fmt.Errorf("opening input ELF %q: %w", params.inputPath, err)
	}
	defer input.Close()

	stat, err := input.Stat()
	if err != nil {
		return fmt.Errorf("statting input ELF %q: %w", params.inputPath, err)
	}

	ctx, err := vitaelf.Load(input)
	if err != nil {
		return fmt.Errorf("loading ELF context: %w", err)
	}
	opts.logger.Info("loaded ELF relocatable",
		"path", params.inputPath,
		"fstubs", len(ctx.FStubs),
		"vstubs", len(ctx.VStubs),
		"relocations", len(ctx.Relocations),
	)

	databases, err := imports.LoadDatabases(params.databasePaths)
	if err != nil {
		return fmt.Errorf("loading import databases: %w", err)
	}
	opts.logger.Info("loaded import databases", "count", len(databases))

	resolver := imports.NewResolver(opts.logger, databases...)
	resolutions, allResolved := resolver.Resolve(ctx)
	opts.logger.Info("resolved imports",
		"total", len(resolutions),
		"allResolved", allResolved,
	)

	img, err := sceimage.Encode(ctx, resolutions, params.moduleName, params.moduleNID)
	if err != nil {
		return fmt.Errorf("encoding SCE module image: %w", err)
	}

	output, err := os.OpenFile(params.outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating output file %q: %w", params.outputPath, err)
	}
	defer output.Close()

	if err := sceimage.WriteELF(ctx, img, input, stat.Size(), output); err != nil {
		return fmt.Errorf("writing output SCE ELF: %w", err)
	}
	opts.logger.Info("wrote SCE module", "path", params.outputPath, "runID", img.RunID)

	if params.report == "html" {
		reportPath := strings.TrimSuffix(params.outputPath, filepath.Ext(params.outputPath)) + ".report.html"
		if err := writeHTMLReport(reportPath, img, resolutions); err != nil {
			return fmt.Errorf("writing resolution report: %w", err)
		}
		opts.logger.Info("wrote resolution report", "path", reportPath)
	}

	if !allResolved {
		return errResolutionIncomplete
	}
	return nil
}

func defaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".sce" + ext
}

// resolveDatabasePaths combines the stock databases discovered next to the
// executable (loaded first, unless the caller opted out of default
// discovery) with any user-supplied databases, which are appended after.
// spec.md §6 loads defaults before user-supplied databases, and
// internal/imports.Resolver resolves first-match-wins over the database
// slice, so when a default and a user-supplied database both define the
// same library NID, the default is the one used.
func resolveDatabasePaths(extra []string, noDefaults bool) ([]string, error) {
	if noDefaults {
		return append([]string(nil), extra...), nil
	}

	defaultPaths, err := defaultDatabasePaths()
	if err != nil {
		return nil, err
	}
	return combineDatabasePaths(defaultPaths, extra), nil
}

// combineDatabasePaths appends extra after defaults, preserving the
// load-order under which an earlier default wins a first-match lookup
// against a later, user-supplied database defining the same NID.
func combineDatabasePaths(defaults, extra []string) []string {
	return append(append([]string(nil), defaults...), extra...)
}
