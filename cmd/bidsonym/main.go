package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/exttool"
	"github.com/PeerHerholz/BIDSonym/oplog"
	"github.com/PeerHerholz/BIDSonym/pipeline"
)

var (
	rootCmd = &cobra.Command{
		Use:   "bidsonym bids_dir analysis_level",
		Short: "De-identify a BIDS dataset: deface anatomical images and scrub identifying metadata",
		Long: `bidsonym defaces the T1w images of a BIDS dataset (and optionally T2w and
FLAIR images through registration), checks image headers and JSON side-cars for
potentially identifying fields, replaces selected fields, and keeps every
original under sourcedata/bidsonym so that a unit can be reverted later.

analysis_level is "participant" (the subjects given with --participant_label,
or all) or "group" (all subjects).

List options take comma-separated or repeated values:
  --participant_label 01,02
  --participant_label 01 --participant_label 02`,
		Args:          positionalArgs,
		Version:       bidsonym.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          cmdRun,
	}

	cfg        pipeline.Config
	modalities []string
	verbose    bool
)

func init() {
	f := rootCmd.Flags()
	f.StringSliceVar(&cfg.ParticipantLabels, "participant_label", nil, "label(s) of the participant(s) to process, with or without \"sub-\" (01,02 or repeat the flag)")
	f.StringSliceVar(&cfg.Sessions, "session", nil, "session label(s) to process (a,b or repeat the flag), or \"all\" (default all)")
	f.StringVar(&cfg.Deid, "deid", "pydeface", "defacing algorithm: pydeface, mri_deface, quickshear, mridefacer or deepdefacer")
	f.BoolVar(&cfg.DefaceT2w, "deface_t2w", false, "also deface T2w images by registering the defaced T1w to them")
	f.BoolVar(&cfg.DefaceFLAIR, "deface_flair", false, "also deface FLAIR images by registering the defaced T1w to them")
	f.StringSliceVar(&modalities, "modalities", nil, "modalities to render QC images for, e.g. T1w,T2w (T1w, T2w, FLAIR; default T1w)")
	f.StringSliceVar(&cfg.CheckMeta, "check_meta", nil, "additional terms marking header and side-car fields as potentially identifying (comma-separated or repeated)")
	f.StringSliceVar(&cfg.DelMeta, "del_meta", nil, "side-car fields whose values are replaced, comma-separated or repeated; originals are backed up first")
	f.StringVar(&cfg.BrainExtraction, "brainextraction", "", "brain extraction algorithm for QC: bet or nobrainer (required)")
	f.Float64Var(&cfg.BetFrac, "bet_frac", 0, "fractional intensity threshold for bet, between 0 and 1 (required with bet)")
	f.StringVar(&cfg.NobrainerModel, "nobrainer_model", "", "model file for nobrainer")
	f.BoolVar(&cfg.SkipBIDSValidation, "skip_bids_validation", false, "do not validate the dataset before processing")
	f.BoolVar(&cfg.Revert, "revert", false, "restore the originals of the selected participants and delete their backups")
	f.BoolVar(&cfg.RevertConfirmOff, "revert_confirm_off", false, "revert without asking for confirmation")
	f.BoolVar(&verbose, "verbose", false, "log debug output")

	rootCmd.SetVersionTemplate("bidsonym version {{.Version}}\n")
}

// positionalArgs accepts exactly bids_dir and analysis_level. Extra values
// usually come from a space-separated list option.
func positionalArgs(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) < 2:
		return bidsonym.ConfigurationError.New("bids_dir and analysis_level are required, got %d argument(s)", len(args))
	case len(args) > 2:
		return bidsonym.ConfigurationError.New("unexpected arguments %q after analysis_level; list options take comma-separated or repeated values, e.g. --participant_label 01,02", args[2:])
	}
	return nil
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	log := oplog.NewConsole(verbose)
	defer func() { _ = log.Sync() }()

	cfg.BIDSDir, err = bidsonym.ExpandHome(args[0])
	if err != nil {
		return err
	}
	cfg.AnalysisLevel = args[1]

	for _, m := range modalities {
		modality, err := bids.ParseModality(m)
		if err != nil {
			return err
		}
		cfg.Modalities = append(cfg.Modalities, modality)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cfg.Validate(); err != nil {
		return err
	}

	var tools pipeline.Tools
	if !cfg.Revert {
		if tools, err = pipeline.NewTools(cfg, exttool.ExecRunner{Log: log}, log); err != nil {
			return err
		}
	}

	p, err := pipeline.New(cfg, tools, log)
	if err != nil {
		return err
	}

	var summary *pipeline.Summary
	if cfg.Revert {
		summary, err = p.Revert()
	} else {
		summary, err = p.Run(ctx)
	}
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	return summary.Err()
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	for _, u := range s.Done {
		fmt.Fprintf(out, "%s: done\n", u)
	}
	for _, u := range s.Skipped {
		fmt.Fprintf(out, "%s: skipped: %v\n", u.Unit, u.Err)
	}
	for _, u := range s.Failed {
		fmt.Fprintf(out, "%s: FAILED: %v\n", u.Unit, u.Err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bidsonym:", err)
		os.Exit(1)
	}
}
