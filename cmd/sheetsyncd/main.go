package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sheetsyncd",
	Short: "sheetsyncd - scheduled spreadsheet sync daemon",
	Long: `sheetsyncd scans local directories on a schedule, picks the spreadsheet
files matching each task's filters and uploads them to an online sheet.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCronCmd)
	rootCmd.AddCommand(nextRunCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
