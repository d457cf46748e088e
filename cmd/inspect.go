// File: cmd/inspect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/browser/snapshot"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

type inspectOptions struct {
	htmlPath        string
	targets         []string
	category        string
	subJurisdiction string
	subRegion       string
	format          string
}

func newInspectCmd() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Check locator tables against a saved page without a browser",
		Long: `Loads a saved HTML page (for example a checkpoint page-source dump) and reports,
for every candidate of the selected targets, how many elements it matches and which
candidate resolution would pick. Nothing on the page is clicked or typed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.htmlPath, "html", "", "saved HTML page to inspect")
	f.StringSliceVar(&opts.targets, "target", nil, "target names to check (default: every static target)")
	f.StringVar(&opts.category, "category", "", "also check the link for this category")
	f.StringVar(&opts.subJurisdiction, "sub-jurisdiction", "", "also check the link for this sub-jurisdiction")
	f.StringVar(&opts.subRegion, "sub-region", "", "also check the link for this sub-region (needs --sub-jurisdiction)")
	f.StringVarP(&opts.format, "format", "o", "text", "output format: text, json or yaml")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}

func runInspect(ctx context.Context, opts inspectOptions, out io.Writer) error {
	sets, err := inspectSets(opts)
	if err != nil {
		return err
	}
	page, err := snapshot.Load(opts.htmlPath)
	if err != nil {
		return err
	}

	// The search button shares its label with decoys that must never win.
	exclusions := map[string]dom.Exclusion{
		locator.SearchSubmit.Target: dom.ExcludeTokens(locator.DecoyTokens),
	}
	reports, err := snapshot.Inspect(ctx, page, sets, exclusions)
	if err != nil {
		return fmt.Errorf("inspection failed: %w", err)
	}
	return writeReports(out, opts.format, reports)
}

// inspectSets picks the requested static tables plus any dynamic ones the flags describe.
func inspectSets(opts inspectOptions) ([]locator.Set, error) {
	named := locator.Named()
	var sets []locator.Set

	switch {
	case len(opts.targets) > 0:
		for _, name := range opts.targets {
			s, ok := named[name]
			if !ok {
				return nil, fmt.Errorf("unknown target '%s' (known: %s)", name, strings.Join(sortedKeys(named), ", "))
			}
			sets = append(sets, s)
		}
	case opts.category == "" && opts.subJurisdiction == "":
		for _, name := range sortedKeys(named) {
			sets = append(sets, named[name])
		}
	}

	if opts.category != "" {
		s, err := locator.CategoryLink(opts.category)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	if opts.subJurisdiction != "" {
		s, err := locator.SubJurisdictionLink(opts.subJurisdiction)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	if opts.subRegion != "" {
		if opts.subJurisdiction == "" {
			return nil, fmt.Errorf("--sub-region requires --sub-jurisdiction")
		}
		s, err := locator.SubRegionLink(opts.subJurisdiction, opts.subRegion)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func writeReports(out io.Writer, format string, reports []snapshot.TargetReport) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		resolved := 0
		for _, r := range reports {
			status := "UNRESOLVED"
			if r.Resolved() {
				status = "resolved by " + r.Winner.String()
				resolved++
			}
			fmt.Fprintf(out, "%s: %s\n", r.Target, status)
			for _, c := range r.Candidates {
				line := fmt.Sprintf("    %-60s matches=%d usable=%d excluded=%d", c.Candidate, c.Matches, c.Usable, c.Excluded)
				if c.First != nil {
					line += "  first=" + c.First.Describe()
				}
				if c.Error != "" {
					line += "  error=" + c.Error
				}
				fmt.Fprintln(out, line)
			}
		}
		fmt.Fprintf(out, "\n%d of %d targets resolved.\n", resolved, len(reports))
		return nil
	default:
		return fmt.Errorf("unsupported format '%s' (use text, json or yaml)", format)
	}
}

func sortedKeys(m map[string]locator.Set) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
