package cli

import (
	"context"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/queryir"
	"github.com/roach88/gridcalc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Where    []string
	Delete   bool
}

// HistoryResult is the output of history.
type HistoryResult struct {
	Workbook  string           `json:"workbook"`
	Snapshots []store.Snapshot `json:"snapshots"`
	Deleted   int64            `json:"deleted,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <workbook>",
		Short: "List saved snapshots of a workbook",
		Long: `List the snapshots saved for a workbook, newest first. <workbook> is a
workbook file or a workbook name.

--where keeps only snapshots whose saved values match. Repeated filters
must all match. Addresses need a sheet prefix:
  Sheet!A1=2000      value equals (JSON, else text)
  Sheet!A1<0.3       numeric compare: < <= > >= !=
  Sheet!A1           a value was saved for the cell

Examples:
  gridcalc history ./loan.yaml --db ./loan.db
  gridcalc history loan --db ./loan.db --limit 5 --format json
  gridcalc history loan --db ./loan.db --where 'Inputs!A1>=2000'
  gridcalc history loan --db ./loan.db --delete`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many snapshots")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter on a saved cell value (repeatable)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete every snapshot of the workbook")

	return cmd
}

func runHistory(ctx context.Context, opts *HistoryOptions, arg string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	name, err := workbookName(arg)
	if err != nil {
		return reportLoadError(out, err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return fail(out, ErrCodeStore, err, nil)
	}
	defer st.Close()

	result := HistoryResult{Workbook: name}
	if opts.Delete {
		n, err := st.Delete(ctx, name)
		if err != nil {
			return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to delete snapshots", err), nil)
		}
		result.Deleted = n
		result.Snapshots = []store.Snapshot{}
		if out.IsJSON() {
			return out.Success(result)
		}
		out.Printf("Deleted %d snapshots of %s\n", n, name)
		return nil
	}

	q, err := historyQuery(name, opts)
	if err != nil {
		return fail(out, ErrCodeBadInput, WrapExitError(ExitCommandError, "invalid filter", err), nil)
	}
	snaps, err := st.Find(ctx, q)
	if err != nil {
		return fail(out, ErrCodeStore, WrapExitError(ExitCommandError, "failed to list snapshots", err), nil)
	}
	result.Snapshots = snaps

	if out.IsJSON() {
		return out.Success(result)
	}
	if len(snaps) == 0 {
		out.Printf("No snapshots of %s.\n", name)
		return nil
	}
	for _, s := range snaps {
		out.Printf("%4d  %s  %d values  %s\n", s.Seq, s.ID, len(s.Values), shortHash(s.StateHash))
		if opts.Verbose {
			for _, addr := range slices.Sorted(maps.Keys(s.Values)) {
				out.Printf("        %s = %s\n", addr, formatScalar(s.Values[addr]))
			}
		}
	}
	return nil
}

// historyQuery builds the newest-first search for the history flags.
func historyQuery(name string, opts *HistoryOptions) (queryir.Select, error) {
	q := queryir.Select{Workbook: name, Order: queryir.NewestFirst, Limit: opts.Limit}
	var preds []queryir.Predicate
	for _, w := range opts.Where {
		p, err := queryir.ParsePredicate(w)
		if err != nil {
			return q, err
		}
		preds = append(preds, p)
	}
	switch len(preds) {
	case 0:
	case 1:
		q.Filter = preds[0]
	default:
		q.Filter = queryir.And{Predicates: preds}
	}
	return q, queryir.Validate(q)
}

// workbookName resolves a history argument: an existing file is loaded
// for its name, anything else is taken as the name itself.
func workbookName(arg string) (string, error) {
	if info, err := os.Stat(arg); err != nil || info.IsDir() {
		return arg, nil
	}
	desc, err := ir.LoadFile(arg)
	if err != nil {
		return "", WrapExitError(ExitFailure, arg, err)
	}
	return desc.Name, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
