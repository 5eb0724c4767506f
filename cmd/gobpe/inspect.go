package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
)

func newInspectCmd() *cobra.Command {
	var (
		top    int
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest, files and first merges of a vocabulary directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if top < 0 {
				return fmt.Errorf("--top must not be negative")
			}

			store, err := artifact.OpenStore(cfg.Paths.VocabDir)
			if err != nil {
				return err
			}

			if verify {
				if err := store.Verify(); err != nil {
					return err
				}
			}

			merges, err := store.LoadMerges()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			m := store.Manifest()

			summary := newTable(out, nil)
			summary.SetTablePadding(" ")
			summary.AppendBulk([][]string{
				{"Directory:", store.Dir()},
				{"Run:", m.RunID},
				{"Generated:", m.Generated},
				{"Codec:", m.Codec},
				{"End of word:", m.EndOfWord},
				{"Merges:", strconv.Itoa(m.NumMerges)},
				{"Vocabulary:", strconv.Itoa(m.VocabSize)},
				{"Fingerprint:", m.Fingerprint},
			})
			summary.Render()
			fmt.Fprintln(out)

			names := make([]string, 0, len(m.Files))
			for name := range m.Files {
				names = append(names, name)
			}
			sort.Strings(names)

			var files [][]string
			for _, name := range names {
				rec := m.Files[name]
				files = append(files, []string{name, strconv.FormatInt(rec.Size, 10), rec.SHA256[:12]})
			}

			table := newTable(out, []string{"FILE", "SIZE", "SHA256"})
			table.AppendBulk(files)
			table.Render()

			if top == 0 || len(merges) == 0 {
				return nil
			}

			fmt.Fprintln(out)

			var rows [][]string
			for i, p := range merges[:min(top, len(merges))] {
				rows = append(rows, []string{strconv.Itoa(i), p.A, p.B, p.Merged()})
			}

			table = newTable(out, []string{"RANK", "LEFT", "RIGHT", "MERGED"})
			table.AppendBulk(rows)
			table.Render()

			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 20, "Number of leading merges to list (0 hides them)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check file digests against the manifest first")

	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)

	return table
}
