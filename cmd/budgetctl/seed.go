package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetkit/internal/seed"
)

var flagSeedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create categories and budgets from a TOML file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := seed.Load(flagSeedFile)
		if err != nil {
			return err
		}

		_, dbManager, svc, err := openServices()
		if err != nil {
			return err
		}
		defer dbManager.Close()

		result, err := seed.Apply(f, svc.Users, svc.Categories, svc.Budgets)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d categories and %d budgets for %s\n",
			result.Categories, result.Budgets, f.UserEmail)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&flagSeedFile, "file", "f", "budgets.toml", "Seed file")
	rootCmd.AddCommand(seedCmd)
}
