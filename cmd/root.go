// Package cmd is for command line interactions with the schemarefinery application
package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// settings holds the flags bound by every command, config.Load reads it
var settings = viper.New()

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use: "schemarefinery",
	Short: `Find and merge redundant loci of a cg/wgMLST schema.
Loci whose alleles align with a high BLAST Score Ratio are merged into one`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

// newLogger returns a production logger, a development one when verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
