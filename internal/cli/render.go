package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"kwscan/internal/domain"
)

// writeReport renders rep in the given format.
func writeReport(w io.Writer, rep *domain.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		return renderTable(w, rep)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func renderTable(w io.Writer, rep *domain.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tSOFT\tSOFT IMPACT\tHARD\tHARD IMPACT\tVENDORS\tWELL-KNOWN")
	for _, kr := range rep.ByImpact() {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			kr.Keyword,
			kr.SoftCount, kr.SoftImpact,
			kr.HardCount, kr.HardImpact,
			vendorCount(kr),
			joinOrDash(kr.WellKnownVendors),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Labels) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LABEL\tCOUNT\tWELL-KNOWN")
		for _, lr := range rep.Labels {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", lr.Label, lr.Count, joinOrDash(lr.WellKnownVendors))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nFiles analyzed: %d", rep.FilesAnalyzed)
	if rep.FilesCached > 0 {
		fmt.Fprintf(w, " (%d cached)", rep.FilesCached)
	}
	fmt.Fprintln(w)
	if rep.FilesFailed > 0 {
		fmt.Fprintf(w, "Files failed:   %d (%s)\n", rep.FilesFailed, errorSummary(rep.Errors))
		for _, s := range rep.ErrorSamples {
			fmt.Fprintf(w, "  - %s %s: %s\n", s.Package, s.Path, s.Message)
		}
	}
	if rep.Duration > 0 {
		fmt.Fprintf(w, "Duration:       %s\n", formatDuration(rep.Duration))
	}
	if rep.Interrupted {
		fmt.Fprintln(w, "\nWarning: the run was interrupted, counts cover only the files analyzed.")
	}
	if rep.LowFileCount {
		fmt.Fprintf(w, "\nWarning: fewer than %d files were analyzed, the impact bands may not be representative.\n",
			domain.LowFileCountThreshold)
	}
	return nil
}

func vendorCount(kr domain.KeywordReport) string {
	if kr.VendorsTruncated {
		return fmt.Sprintf("%d+", len(kr.Vendors))
	}
	return fmt.Sprintf("%d", len(kr.Vendors))
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func errorSummary(errs map[domain.ErrorKind]int64) string {
	kinds := make([]string, 0, len(errs))
	for kind := range errs {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, errs[domain.ErrorKind(kind)]))
	}
	return strings.Join(parts, " ")
}
