package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/drive"
)

var filesCmd = &cobra.Command{
	Use:   "files [folder-id]",
	Short: "List recent files, or the contents of a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepositoryOnly(cmd)
		if err != nil {
			return err
		}
		folder := ""
		if len(args) == 1 {
			folder = args[0]
		}
		files, err := repo.List(cmd.Context(), folder, consts.MaxListResults)
		if err != nil {
			return err
		}
		printFiles(os.Stdout, files)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search file names and content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepositoryOnly(cmd)
		if err != nil {
			return err
		}
		files, err := repo.Search(cmd.Context(), strings.Join(args, " "), consts.DefaultSearchResults)
		if err != nil {
			return err
		}
		printFiles(os.Stdout, files)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd, searchCmd)
}

// openRepositoryOnly skips the model client, so no API key is needed.
func openRepositoryOnly(cmd *cobra.Command) (drive.Repository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openRepository(cmd.Context(), cfg)
}

func printFiles(w io.Writer, files []drive.FileSummary) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tMODIFIED")
	for _, f := range files {
		modified := ""
		if !f.ModifiedTime.IsZero() {
			modified = f.ModifiedTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Name, f.MimeType, modified)
	}
	tw.Flush()
}
