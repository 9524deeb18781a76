// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

// defaultSettings are the settings every run starts from
//
//go:embed settings.yaml
var defaultSettings []byte

//go:embed settings.cue
var settingsSchema string

// CandidateConfig is for the pre-filter of pairs worth aligning
type CandidateConfig struct {
	// the minimum ratio of the shorter to the longer sequence of a pair
	SizeRatio float64 `mapstructure:"size-ratio" json:"size-ratio"`

	// k-mer length of the minimizer sketches, 0 skips the k-mer filter
	KmerSize int `mapstructure:"kmer-size" json:"kmer-size"`

	// window of consecutive k-mers a minimizer is picked from
	Window int `mapstructure:"window" json:"window"`

	// the fraction of the smaller sketch two records have to share
	MinSimilarity float64 `mapstructure:"min-similarity" json:"min-similarity"`
}

// BatchConfig is for splitting scoring work
type BatchConfig struct {
	// pairs per aligner call
	Size int `mapstructure:"size" json:"size"`

	// batches scored at once, 0 for the number of CPUs
	Workers int `mapstructure:"workers" json:"workers"`

	// edges held in memory before they're flushed into the graph
	MaxResidentEdges int `mapstructure:"max-resident-edges" json:"max-resident-edges"`
}

// ScoringConfig is for turning alignments into BSR edges
type ScoringConfig struct {
	// the fraction of candidate pairs allowed to fail before a run aborts
	MaxFailureRate float64 `mapstructure:"max-failure-rate" json:"max-failure-rate"`

	// which self-score a raw score is divided by: max-self, mean or query
	Denominator string `mapstructure:"denominator" json:"denominator"`

	// percent identity separating high and low identity classes
	PIdent float64 `mapstructure:"pident" json:"pident"`
}

// RepresentativeConfig is for choosing the representative of a cluster
type RepresentativeConfig struct {
	// keys compared in turn: length, allele-index, id
	Order []string `mapstructure:"order" json:"order"`
}

// BlastConfig is for the blastn aligner
type BlastConfig struct {
	// path to the blastn binary
	Blastn string `mapstructure:"blastn" json:"blastn"`

	// blastn -task
	Task string `mapstructure:"task" json:"task"`

	// blastn -evalue
	EValue float64 `mapstructure:"evalue" json:"evalue"`

	// score of a single matching base, self-scores are length times this
	MatchReward int `mapstructure:"match-reward" json:"match-reward"`

	// where temporary FASTA and output files go, empty for the OS default
	WorkDir string `mapstructure:"work-dir" json:"work-dir"`
}

// Config is the root-level settings struct and is a mix
// of settings available in settings.yaml and those
// available from the command line
type Config struct {
	// BSR at or above which two loci are redundant
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	// representatives or alleles
	Mode string `mapstructure:"mode" json:"mode"`

	Candidates     CandidateConfig      `mapstructure:"candidates" json:"candidates"`
	Batch          BatchConfig          `mapstructure:"batch" json:"batch"`
	Scoring        ScoringConfig        `mapstructure:"scoring" json:"scoring"`
	Representative RepresentativeConfig `mapstructure:"representative" json:"representative"`
	Blast          BlastConfig          `mapstructure:"blast" json:"blast"`

	// path to the sqlite run ledger, empty to skip it
	Ledger string `mapstructure:"ledger" json:"ledger"`
}

// Load returns a Config from the embedded defaults, the settings file at
// settingsPath (if any) and whatever flags were bound to v, in increasing
// precedence.
func Load(v *viper.Viper, settingsPath string) (*Config, error) {
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultSettings)); err != nil {
		return nil, fmt.Errorf("failed to read default settings: %w", err)
	}

	if settingsPath != "" {
		v.SetConfigFile(settingsPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the embedded settings.
func Default() *Config {
	c, err := Load(viper.New(), "")
	if err != nil {
		panic(err) // the embedded settings are broken
	}
	return c
}

// Validate checks the settings against the settings schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(settingsSchema).LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("failed to compile settings schema: %w", err)
	}

	val := schema.Unify(ctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid settings: %s", errors.Details(err, nil))
	}
	return nil
}

// Workers is the number of batches scored at once.
func (c *Config) Workers() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	return runtime.NumCPU()
}

// JSON returns the settings as indented JSON, as recorded in the run ledger.
func (c *Config) JSON() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
