package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MForofontov/Schema-Refinery/config"
	"github.com/MForofontov/Schema-Refinery/internal/blast"
	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/ledger"
	"github.com/MForofontov/Schema-Refinery/internal/refine"
)

var (
	schemaPath   string
	outputPath   string
	settingsPath string
	force        bool
	verbose      bool
)

// newAligner builds the aligner a run scores pairs with
var newAligner = func(conf *config.Config, log *zap.Logger) bsr.Aligner {
	return blast.New(blast.Options{
		Path:     conf.Blast.Blastn,
		Task:     conf.Blast.Task,
		EValue:   conf.Blast.EValue,
		Identity: conf.Scoring.PIdent,
		WorkDir:  conf.Blast.WorkDir,
	}, log)
}

// refineCmd is for removing redundant loci from a schema
var refineCmd = &cobra.Command{
	Use:                        "refine",
	Short:                      "Merge the redundant loci of a schema",
	RunE:                       refineExec,
	SuggestionsMinimumDistance: 3,
	Long: `Merge the redundant loci of a schema and write the refined schema.

"schemarefinery refine" finds loci that are the same gene split in two. It does this by:

1. Pairing up records of different loci that share k-mers and have similar lengths
2. Aligning every pair with blastn and dividing its raw score by the larger
   self-score, the BLAST Score Ratio (BSR)
3. Joining records whose BSR is at or above the threshold, and every allele
   of a locus, into clusters
4. Writing one locus per cluster, named after the locus of its representative

The refined schema is written in full or not at all.`,
}

func init() {
	refineCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "path to the schema directory")
	refineCmd.Flags().StringVarP(&outputPath, "output", "o", "", "path to write the refined schema to")
	refineCmd.Flags().StringVar(&settingsPath, "settings", "", "settings file overriding the defaults")
	refineCmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing output directory")
	refineCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	refineCmd.Flags().Float64P("threshold", "t", 0, "BSR at or above which two loci are redundant")
	refineCmd.Flags().String("mode", "", "records to compare: representatives or alleles")
	refineCmd.Flags().Int("workers", 0, "batches aligned at once, 0 for the number of CPUs")
	refineCmd.Flags().Int("batch-size", 0, "candidate pairs per blastn call")
	refineCmd.Flags().Float64("max-failure-rate", 0, "fraction of pairs allowed to fail to score")
	refineCmd.Flags().String("blastn", "", "path to the blastn binary")
	refineCmd.Flags().String("ledger", "", "sqlite database to record the run in")

	refineCmd.MarkFlagRequired("schema")
	refineCmd.MarkFlagRequired("output")

	// Bind the parameters to their settings keys
	settings.BindPFlag("threshold", refineCmd.Flags().Lookup("threshold"))
	settings.BindPFlag("mode", refineCmd.Flags().Lookup("mode"))
	settings.BindPFlag("batch.workers", refineCmd.Flags().Lookup("workers"))
	settings.BindPFlag("batch.size", refineCmd.Flags().Lookup("batch-size"))
	settings.BindPFlag("scoring.max-failure-rate", refineCmd.Flags().Lookup("max-failure-rate"))
	settings.BindPFlag("blast.blastn", refineCmd.Flags().Lookup("blastn"))
	settings.BindPFlag("ledger", refineCmd.Flags().Lookup("ledger"))

	RootCmd.AddCommand(refineCmd)
}

// refineExec loads the settings, runs the refinement and prints a summary
func refineExec(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(settings, settingsPath)
	if err != nil {
		return err
	}

	log, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := []refine.Option{refine.WithLogger(log)}
	if conf.Ledger != "" {
		l, err := ledger.Open(conf.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		opts = append(opts, refine.WithLedger(l))
	}

	r := refine.New(conf, newAligner(conf, log), opts...)
	rep, err := r.Run(cmd.Context(), refine.Request{
		Schema: schemaPath,
		Output: outputPath,
		Force:  force,
	})
	if err != nil {
		return err
	}
	return rep.Print(cmd.OutOrStdout())
}
