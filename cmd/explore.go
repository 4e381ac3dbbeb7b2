package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mreplay/config"
	cerrors "mreplay/errors"
	"mreplay/event"
	"mreplay/explorer"
	"mreplay/isolation"
	"mreplay/logging"
	"mreplay/replay"
	"mreplay/session"
	"mreplay/store"
)

var exploreCmd = &cobra.Command{
	Use:   "explore <logfile>",
	Short: "Explore mutated replays of a recorded execution trace",
	Long: `explore reads a recorded event log, then repeatedly mutates and
replays it: inserting, deleting, or replacing events and feeding each
candidate to the replay driver until enough candidates succeed, the
run is interrupted, or the TODO queue empties.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

var (
	exploreOnTheFly      bool
	exploreVarIO         bool
	exploreNumSuccess    int
	exploreIsolate       bool
	exploreQuadratic     bool
	explorePattern       string
	exploreAddConstant   int
	exploreDelConstant   int
	exploreMatchConstant int
	exploreMaxDelete     int
	exploreMaxOtf        int
	exploreScratchDir    string
	exploreDriver        string
)

func init() {
	rootCmd.AddCommand(exploreCmd)

	def := config.Default()
	exploreCmd.Flags().BoolVar(&exploreOnTheFly, "on-the-fly", false, "enable mid-replay mutation callbacks")
	exploreCmd.Flags().BoolVar(&exploreVarIO, "var-io", false, "relax fixed-I/O enforcement on the replayed session")
	exploreCmd.Flags().IntVar(&exploreNumSuccess, "num-success-to-stop", 0, "stop after this many successful replays (0 = unbounded)")
	exploreCmd.Flags().BoolVar(&exploreIsolate, "isolate", false, "wrap each replay in the isolation jail")
	exploreCmd.Flags().BoolVar(&exploreQuadratic, "quadratic", false, "use quadratic-sqrt scoring instead of linear")
	exploreCmd.Flags().StringVar(&explorePattern, "pattern", def.Pattern, "restrict allowed mutation kinds per depth (+, -, r, ., *)")
	exploreCmd.Flags().IntVar(&exploreAddConstant, "add-constant", def.AddConstant, "score weight for inserted events")
	exploreCmd.Flags().IntVar(&exploreDelConstant, "del-constant", def.DelConstant, "score weight for deleted events")
	exploreCmd.Flags().IntVar(&exploreMatchConstant, "match-constant", def.MatchConstant, "score weight for the matching prefix")
	exploreCmd.Flags().IntVar(&exploreMaxDelete, "max-delete", def.MaxDelete, "bound a single deletion-extent search")
	exploreCmd.Flags().IntVar(&exploreMaxOtf, "max-otf", def.MaxOtf, "bound on-the-fly nesting depth")
	exploreCmd.Flags().StringVar(&exploreScratchDir, "scratch-dir", store.ScratchDirName, "scratch directory for generated logs")
	exploreCmd.Flags().StringVar(&exploreDriver, "driver", "fake", "replay driver to use (only \"fake\" is built into this binary)")
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	cfg := config.Options{
		LogfilePath:      args[0],
		OnTheFly:         exploreOnTheFly,
		VarIO:            exploreVarIO,
		NumSuccessToStop: exploreNumSuccess,
		Isolate:          exploreIsolate,
		Linear:           !exploreQuadratic,
		Pattern:          explorePattern,
		AddConstant:      exploreAddConstant,
		DelConstant:      exploreDelConstant,
		MatchConstant:    exploreMatchConstant,
		MaxDelete:        exploreMaxDelete,
		MaxOtf:           exploreMaxOtf,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := event.OpenLog(cfg.LogfilePath)
	if err != nil {
		return fmt.Errorf("open input log: %w", err)
	}
	raws, err := log.Events()
	log.Close()
	if err != nil {
		return fmt.Errorf("decode input log: %w", err)
	}
	rootSession := session.FromRawEvents(raws)

	st, err := store.Open(exploreScratchDir)
	if err != nil {
		return fmt.Errorf("open scratch directory: %w", err)
	}
	defer st.Close()
	if err := st.WriteRootLog(raws); err != nil {
		return fmt.Errorf("write root log: %w", err)
	}

	openFunc, err := driverFor(exploreDriver)
	if err != nil {
		return err
	}

	var jail *isolation.Jail
	if cfg.Isolate {
		if err := isolation.CheckEnvironment(); err != nil {
			return fmt.Errorf("isolation unavailable: %w", err)
		}
		jail = &isolation.Jail{}
		if err := jail.Open(ctx); err != nil {
			return fmt.Errorf("open jail: %w", err)
		}
		defer jail.Close(ctx)
	}

	rp := &replay.Replayer{Open: openFunc, Jail: jail}

	ex, err := explorer.New(cfg, rootSession, st, rp)
	if err != nil {
		return fmt.Errorf("build explorer: %w", err)
	}

	if err := ex.Run(ctx); err != nil {
		return fmt.Errorf("run exploration: %w", err)
	}

	logging.InfoContext(ctx, "exploration summary",
		"executions", len(ex.Executions()), "success", ex.NumSuccess())
	return nil
}

// driverFor resolves --driver into an OpenFunc. "fake" is the only driver
// this binary ships (SPEC_FULL.md §1): the kernel-level record/replay
// facility a real driver would talk to is an external collaborator this
// module never implements.
func driverFor(name string) (replay.OpenFunc, error) {
	switch name {
	case "fake", "":
		return replay.OpenFake, nil
	default:
		return nil, cerrors.WrapWithDetail(nil, cerrors.ErrInvalidConfig, "resolve driver",
			"unrecognized driver: "+name)
	}
}
