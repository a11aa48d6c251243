package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(listLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tDATA\tSAMPLES\tCLUSTERS\tEPOCHS\tPURITY")
		for _, r := range runs {
			purity := "-"
			if r.Purity != nil {
				purity = fmt.Sprintf("%.4f", *r.Purity)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d -> %d\t%d\t%s\n",
				shortID(r.ID), r.CreatedAt, r.DataPath, r.NSamples, r.InitialClusters, r.NClusters, r.Epochs, purity)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run and its merge history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}

		sizes := make([]int, run.NClusters)
		for _, l := range run.Labels {
			sizes[l]++
		}

		fmt.Printf("Run:       %s\n", run.ID)
		fmt.Printf("Created:   %s\n", run.CreatedAt)
		fmt.Printf("Data:      %s (%d samples)\n", run.DataPath, run.NSamples)
		fmt.Printf("Clusters:  %d -> %d after %d epochs\n", run.InitialClusters, run.NClusters, run.Epochs)
		if run.Purity != nil {
			fmt.Printf("Purity:    %.4f\n", *run.Purity)
		}

		fmt.Println("\nClusters:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tSIZE\tREPRESENTATIVE")
		for c, size := range sizes {
			fmt.Fprintf(w, "  %d\t%d\t%d\n", c, size, run.Representatives[c])
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(run.Merges) == 0 {
			return nil
		}
		fmt.Println("\nMerges:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  EPOCH\tKIND\tPAIR\tP-VALUE\tSIZE\tCLUSTERS")
		for _, m := range run.Merges {
			pair := fmt.Sprintf("%d+%d", m.A, m.B)
			if m.B < 0 {
				pair = fmt.Sprintf("%d", m.A)
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%.4f\t%d\t%d\n", m.Epoch, m.Kind, pair, m.PValue, m.Size, m.NClusters)
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
}
