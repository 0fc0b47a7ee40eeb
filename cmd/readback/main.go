package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"readback/internal/airport"
	"readback/internal/config"
	"readback/internal/fsm"
	"readback/internal/logging"
	"readback/internal/reasoning"
	"readback/internal/session"
	"readback/internal/store"
)

var version = "0.3.0"

var (
	// Global flags
	verbose    bool
	configPath string
	dryRun     bool

	// start flags
	startUser      string
	startMode      string
	startDeparture string
	startArrival   string

	// advance flags
	advanceUser string
	advanceFrom string
	advanceTo   string

	// respond flags
	respondUser string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "readback",
	Short: "readback - pilot radio phraseology trainer core",
	Long: `readback drives pilot radio-communication training sessions.

A declarative flight mode catalog defines the phases of flight and the
legal transitions between them; an LLM collaborator plays the facility
(tower, ground, CTAF traffic) while the session core validates every
phase advance and keeps the full transmission record.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// validateCmd loads the catalog and builds every flight mode graph.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the flight mode catalog",
	Long: `Parses the catalog, resolves every phase and template reference, and
builds the operative graph for every flight mode. Any dangling reference
or unbuildable mode is reported. Edges whose origin cannot be reached
from a mode's start phase are listed as dropped.`,
	RunE: runValidate,
}

// modesCmd lists the flight modes in the catalog.
var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List flight modes",
	RunE:  runModes,
}

// graphCmd prints a mode's operative graph.
var graphCmd = &cobra.Command{
	Use:   "graph [mode]",
	Short: "Print the operative graph of a flight mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

// startCmd creates a new training session.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a training session",
	Long: `Creates a session in the not-started sentinel phase and assigns the
squawk code per the mode's policy. The first advance must target the
mode's start phase.

Example:
  readback start --user alice --mode VFR_PATTERN --departure KPAO`,
	RunE: runStart,
}

// advanceCmd advances a session to a new phase.
var advanceCmd = &cobra.Command{
	Use:   "advance [session-id]",
	Short: "Advance a session to a new phase",
	Long: `Validates the requested transition against the mode's operative graph
and commits it. If the new phase calls for the facility to speak first,
the proactive transmission is printed.

Example:
  readback advance 4f7c... --user alice --from NOT_STARTED --to PARKING_STARTUP`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

// respondCmd relays a pilot transmission and prints the facility reply.
var respondCmd = &cobra.Command{
	Use:   "respond [session-id] [message...]",
	Short: "Transmit as the pilot and print the facility's reply",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRespond,
}

// versionCmd prints the version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the readback version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("readback %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "readback.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Use a canned facility instead of the LLM collaborator")

	startCmd.Flags().StringVar(&startUser, "user", "", "User ID (required)")
	startCmd.Flags().StringVar(&startMode, "mode", "", "Flight mode ID (required)")
	startCmd.Flags().StringVar(&startDeparture, "departure", "", "Departure airport ICAO (required)")
	startCmd.Flags().StringVar(&startArrival, "arrival", "", "Arrival airport ICAO (one-way modes)")
	startCmd.MarkFlagRequired("user")
	startCmd.MarkFlagRequired("mode")
	startCmd.MarkFlagRequired("departure")

	advanceCmd.Flags().StringVar(&advanceUser, "user", "", "User ID (required)")
	advanceCmd.Flags().StringVar(&advanceFrom, "from", "", "Current phase (required)")
	advanceCmd.Flags().StringVar(&advanceTo, "to", "", "Target phase (required)")
	advanceCmd.MarkFlagRequired("user")
	advanceCmd.MarkFlagRequired("from")
	advanceCmd.MarkFlagRequired("to")

	respondCmd.Flags().StringVar(&respondUser, "user", "", "User ID (required)")
	respondCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRegistry loads the config, catalog and graph registry.
func loadRegistry() (*config.Config, *fsm.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	def, err := fsm.LoadDefinition(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}
	reg, err := fsm.NewRegistry(def, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

// openOrchestrator wires the full session stack. The caller must Close
// the returned store.
func openOrchestrator(ctx context.Context, cfg *config.Config, reg *fsm.Registry) (*session.Orchestrator, *store.Store, error) {
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	idx, err := airport.Load(cfg.Catalog.AirportsPath)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("airports: %w", err)
	}
	if err := st.SeedAirports(ctx, idx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("seed airports: %w", err)
	}

	var collab reasoning.Collaborator
	if dryRun {
		collab = &reasoning.StaticCollaborator{}
	} else {
		if err := cfg.Validate(); err != nil {
			st.Close()
			return nil, nil, err
		}
		gc, err := reasoning.NewGeminiCollaborator(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("collaborator: %w", err)
		}
		collab = gc
	}

	orch := session.NewOrchestrator(reg, st, collab, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	orch.MaxActiveSessions = cfg.Session.MaxActive
	orch.LLMTimeout = cfg.GetLLMTimeout()
	return orch, st, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	def := reg.Definition()

	failed := false
	for _, id := range def.ModeIDs() {
		g, err := reg.Graph(id)
		if err != nil {
			fmt.Printf("  %-24s ERROR: %v\n", id, err)
			failed = true
			continue
		}
		line := fmt.Sprintf("  %-24s %d phases, %d edges", id, len(g.ReachablePhases()), g.EdgeCount())
		if len(g.DroppedEdges) > 0 {
			line += fmt.Sprintf(" (dropped: %s)", strings.Join(g.DroppedEdges, ", "))
		}
		fmt.Println(line)
	}
	if failed {
		return fmt.Errorf("catalog validation failed")
	}
	fmt.Printf("catalog OK: %d phases, %d modes\n", len(def.PhaseIDs()), len(def.ModeIDs()))
	return nil
}

func runModes(cmd *cobra.Command, args []string) error {
	_, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	def := reg.Definition()

	ids := def.ModeIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		mode, _ := def.Mode(id)
		terminals := make([]string, 0, len(mode.TerminalPhases))
		for _, p := range mode.TerminalPhases {
			terminals = append(terminals, string(p))
		}
		fmt.Printf("%-24s %s\n", mode.ID, mode.Label)
		fmt.Printf("    start: %s  terminal: %s\n", mode.StartPhase, strings.Join(terminals, ", "))
	}
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	_, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	g, err := reg.Graph(fsm.ModeID(args[0]))
	if err != nil {
		return err
	}

	fmt.Printf("%s (start %s)\n", g.Mode().ID, g.Mode().StartPhase)
	for _, p := range g.ReachablePhases() {
		for _, e := range g.Outbound(p) {
			fmt.Printf("  %-20s -> %-20s %s\n", e.From, e.To, e.ID)
		}
	}
	if len(g.DroppedEdges) > 0 {
		fmt.Printf("dropped (unreachable origin): %s\n", strings.Join(g.DroppedEdges, ", "))
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	orch, st, err := openOrchestrator(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := orch.StartSession(ctx, startUser, fsm.ModeID(startMode), strings.ToUpper(startDeparture), strings.ToUpper(startArrival))
	if err != nil {
		return err
	}
	fmt.Printf("session %s\n", sess.ID)
	fmt.Printf("  mode:    %s\n", sess.ModeID)
	fmt.Printf("  squawk:  %s\n", sess.Squawk)
	fmt.Printf("  airport: %s\n", sess.ActiveICAO)
	return nil
}

func runAdvance(cmd *cobra.Command, args []string) error {
	cfg, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	orch, st, err := openOrchestrator(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := orch.Advance(ctx, args[0], advanceUser, fsm.PhaseID(advanceFrom), fsm.PhaseID(advanceTo))
	if err != nil {
		// A collaborator failure after the commit still reports the
		// advance; anything else aborts.
		if res == nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fmt.Printf("phase: %s\n", res.NewPhase)
	if res.Complete {
		fmt.Println("session complete")
	}
	if res.ProactiveMessage != "" {
		fmt.Printf("facility: %s\n", res.ProactiveMessage)
	}
	return nil
}

func runRespond(cmd *cobra.Command, args []string) error {
	cfg, reg, err := loadRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	orch, st, err := openOrchestrator(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer st.Close()

	reply, err := orch.Respond(ctx, args[0], respondUser, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if reply == "" {
		fmt.Println("(facility stays silent)")
		return nil
	}
	fmt.Printf("facility: %s\n", reply)
	return nil
}
