// Package cli provides the command-line interface for Capstan
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	workspaceRoot string
	verbosity     string
	version       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "capstan",
	Short: "Coordinated releases for monorepos",
	Long: `⚓ Capstan - Dependency-ordered package releases for monorepos

Capstan levels your workspace's internal dependency graph, plans which
packages need publishing, and releases them level by level with durable
state, so an interrupted run picks up exactly where it stopped.`,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("⚓ Capstan v%s\n", version)
			return
		}
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v

	initializeRootCommand()

	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
// This replaces the init() function to make initialization explicit and testable.
func initializeRootCommand() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: capstan.config.json)")
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "root", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	// Add subcommands
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newUnlockCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(workspaceRoot)
		viper.SetConfigName("capstan.config")
		viper.SetConfigType("json")

		// Also try YAML
		viper.SetConfigName("capstan.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CAPSTAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbosity == "debug" {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Helper functions

func printSuccess(message string) {
	anchor := "⚓"
	fmt.Printf("%s %s %s\n", anchor, color.GreenString("[Capstan]"), message)
}

func printError(message string) {
	anchor := "⚓"
	fmt.Fprintf(os.Stderr, "%s %s %s\n", anchor, color.RedString("[Capstan]"), message)
}

func printInfo(message string) {
	anchor := "⚓"
	fmt.Printf("%s %s %s\n", anchor, color.CyanString("[Capstan]"), message)
}

func printWarning(message string) {
	anchor := "⚓"
	fmt.Printf("%s %s %s\n", anchor, color.YellowString("[Capstan]"), message)
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(workspaceRoot, "capstan.config.json")
}
