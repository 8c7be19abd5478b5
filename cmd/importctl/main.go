package main

import (
    "os"

    "github.com/pterm/pterm"
    "github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
    Use:   "importctl",
    Short: "Import legacy orders into normalized line items",
    Long: `importctl runs order imports against the configured record store.

Examples:
  importctl check                  # validate config and field mapping
  importctl run --record recXXXX   # import the order of one source record
  importctl migrate                # apply database migrations
  importctl seed --file base.json  # load tables into the postgres store`,
    SilenceUsage:  true,
    SilenceErrors: true,
}

func init() {
    rootCmd.PersistentFlags().String("config", "", "config file (default $ORDERBRIDGE_CONFIG)")
    rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every pipeline step")

    rootCmd.AddCommand(runCmd, checkCmd, migrateCmd, seedCmd)
}

func main() {
    if err := rootCmd.Execute(); err != nil {
        pterm.Error.Println(err)
        os.Exit(1)
    }
}
