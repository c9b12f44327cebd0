package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintReport writes a validation report, one line per check in run order,
// followed by its errors and warnings. Colors follow the output profile.
func PrintReport(w io.Writer, report *domain.Report, profile termenv.Profile) {
	pass := profile.String("PASS").Foreground(profile.Color("#22c55e"))
	fail := profile.String("FAIL").Foreground(profile.Color("#ef4444")).Bold()
	warn := profile.String("WARN").Foreground(profile.Color("#eab308"))

	for _, name := range report.Order {
		check := report.Checks[name]
		status := pass
		if !check.Valid {
			status = fail
		}
		fmt.Fprintf(w, "%s  %-20s %s", status, name, check.Description)
		if check.Count > 0 {
			fmt.Fprintf(w, " (%d)", check.Count)
		}
		fmt.Fprintln(w)
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(w)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "%s  %s\n", fail, e)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, m := range report.Warnings {
			fmt.Fprintf(w, "%s  %s\n", warn, m)
		}
	}

	fmt.Fprintln(w)
	if report.Valid {
		fmt.Fprintf(w, "%s corpus is valid\n", pass)
	} else {
		fmt.Fprintf(w, "%s corpus has %d error(s)\n", fail, len(report.Errors))
	}
}
