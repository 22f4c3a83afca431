package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/limamedic/clinic/internal/platform/tabular"
)

// checkStore pings the store and prints the row count of every table. It
// reports whether everything was readable.
func checkStore(ctx context.Context, w io.Writer, name string, store tabular.Store) bool {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	title := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s\n", title("Store "+name))
	healthy := true

	if p, isPinger := store.(tabular.Pinger); isPinger {
		if err := p.Ping(ctx); err != nil {
			fmt.Fprintf(w, "  %-14s %s %v\n", "ping", bad("FAIL"), err)
			return false
		}
		fmt.Fprintf(w, "  %-14s %s\n", "ping", ok("OK"))
	}

	for _, t := range tabular.Tables() {
		rows, err := store.Read(ctx, t)
		if err != nil {
			healthy = false
			fmt.Fprintf(w, "  %-14s %s %v\n", t.Name, bad("FAIL"), err)
			continue
		}
		fmt.Fprintf(w, "  %-14s %s %d row(s)\n", t.Name, ok("OK"), len(rows))
	}
	return healthy
}
