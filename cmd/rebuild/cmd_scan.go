package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/dhamidi/rebuild/classpath"
	"github.com/spf13/cobra"
)

func newScanCmd(s *settings) *cobra.Command {
	var workers int
	var duplicates bool

	cmd := &cobra.Command{
		Use:   "scan <dir | jar>...",
		Short: "Decode every class in directories and archives and report failures",
		Long: `Decode every class found in the given directories, jar and zip files,
rebuilding all method bodies. Failures are reported per class and per
method; a broken class or method never stops the scan.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				s.cfg.Workers = workers
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScan(ctx, s, args, duplicates, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "classes decoded in parallel (0 means one per CPU)")
	cmd.Flags().BoolVarP(&duplicates, "duplicates", "d", true, "report classes with identical contents")

	return cmd
}

type scanReport struct {
	mu         sync.Mutex
	classes    int
	failures   []string
	bodyErrors []string
}

func (r *scanReport) add(name string, class *classfile.ClassFile, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes++
	if err != nil {
		r.failures = append(r.failures, fmt.Sprintf("%s: %s", name, err))
		return nil
	}
	for _, err := range class.BodyErrors() {
		r.bodyErrors = append(r.bodyErrors, err.Error())
	}
	return nil
}

func runScan(ctx context.Context, s *settings, roots []string, duplicates bool, w io.Writer) error {
	scanned, err := classpath.New(roots...)
	if err != nil {
		return err
	}
	defer scanned.Close()

	report := &scanReport{}
	err = scanned.DecodeAll(ctx, s.cfg.Workers, report.add)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	sort.Strings(report.failures)
	sort.Strings(report.bodyErrors)

	fmt.Fprintf(w, "Classes: %d\n", report.classes)
	fmt.Fprintf(w, "Failed classes: %d\n", len(report.failures))
	for _, f := range report.failures {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	fmt.Fprintf(w, "Failed method bodies: %d\n", len(report.bodyErrors))
	for _, f := range report.bodyErrors {
		fmt.Fprintf(w, "  - %s\n", f)
	}

	if !duplicates {
		return nil
	}
	dups, err := scanned.Duplicates()
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}
	fmt.Fprintf(w, "Duplicate contents: %d\n", len(dups))
	for _, d := range dups {
		fmt.Fprintf(w, "  %s\n", d.Fingerprint)
		for _, loc := range d.Locations {
			fmt.Fprintf(w, "    %s\n", loc)
		}
	}
	return nil
}
