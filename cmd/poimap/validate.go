package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

// maxRowErrors caps the row problems listed per category.
const maxRowErrors = 10

// sourceCheck is the dry-run result for one category's source table.
type sourceCheck struct {
	spec       pipeline.SourceSpec
	openErr    error
	rows       int
	valid      int
	incomplete int
	malformed  int
	errors     []string
}

func (c *sourceCheck) errorf(format string, args ...any) {
	if len(c.errors) < maxRowErrors {
		c.errors = append(c.errors, fmt.Sprintf(format, args...))
	}
}

// passed reports whether the table opened and every row was usable or
// blank. With strict, incomplete rows also fail the check.
func (c *sourceCheck) passed(strict bool) bool {
	if c.openErr != nil || c.malformed > 0 {
		return false
	}
	return !strict || c.incomplete == 0
}

func newValidateCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check source tables without geocoding or writing",
		Long: `Opens every category's source table, verifies the required columns and
parses each row the way ingestion would. Address rows are only checked for
a non-empty street address; Mapbox is never called and the store is not
opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := loadSources(a.cfg)
			if err != nil {
				return err
			}
			checks := checkSources(specs)
			if !writeChecks(cmd.OutOrStdout(), checks, strict) {
				return errors.New("validation failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat rows with missing values as failures")
	return cmd
}

func checkSources(specs []pipeline.SourceSpec) []*sourceCheck {
	checks := make([]*sourceCheck, 0, len(specs))
	for _, spec := range specs {
		checks = append(checks, checkSource(spec))
	}
	return checks
}

func checkSource(spec pipeline.SourceSpec) *sourceCheck {
	c := &sourceCheck{spec: spec}

	tbl, err := source.Open(spec.Path)
	if err != nil {
		c.openErr = err
		return c
	}
	defer tbl.Close()

	if err := source.RequireColumns(tbl, spec.Strategy.RequiredColumns()...); err != nil {
		c.openErr = err
		return c
	}

	for row, err := range tbl.Rows() {
		c.rows++
		if err == nil {
			err = checkRow(spec.Strategy, row)
		}
		switch {
		case err == nil:
			c.valid++
		case errors.Is(err, domain.ErrRowIncomplete):
			c.incomplete++
			c.errorf("row %d: %v", row.Line, err)
		default:
			c.malformed++
			c.errorf("row %d: %v", row.Line, err)
		}
	}
	return c
}

func checkRow(strategy pipeline.Strategy, row source.Row) error {
	if strategy == pipeline.AddressLookup {
		if row.Get(pipeline.ColumnStreetAddress) == "" {
			return fmt.Errorf("%w: street address is empty", domain.ErrRowIncomplete)
		}
		return nil
	}
	_, err := domain.ParseCoordinates(row.Get(pipeline.ColumnLatitude), row.Get(pipeline.ColumnLongitude))
	return err
}

// writeChecks prints a summary and the collected row problems, and reports
// whether every check passed.
func writeChecks(w io.Writer, checks []*sourceCheck, strict bool) bool {
	fmt.Fprintln(w, "=== Source Table Validation ===")
	fmt.Fprintln(w)

	ok := true
	for _, c := range checks {
		status := "PASS"
		if !c.passed(strict) {
			status = "FAIL"
			ok = false
		}
		if c.openErr != nil {
			fmt.Fprintf(w, "  %-16s %s  %v\n", c.spec.Category, status, c.openErr)
			continue
		}
		fmt.Fprintf(w, "  %-16s %s  rows=%d valid=%d incomplete=%d malformed=%d\n",
			c.spec.Category, status, c.rows, c.valid, c.incomplete, c.malformed)
	}

	for _, c := range checks {
		if len(c.errors) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s (%s) ---\n", c.spec.Category, c.spec.Path)
		for i, e := range c.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if ok {
		fmt.Fprintln(w, "\nAll sources passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return ok
}
