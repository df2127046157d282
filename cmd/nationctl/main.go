package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/game"
	"github.com/user/nation-builder/internal/objective"
	"github.com/user/nation-builder/internal/sim"
	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
)

var (
	configPath string
	savePath   string
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nationctl",
		Short: "Play a nation from the terminal",
		Long: `Reads and advances the local nation save file: research technologies,
invest in stats, assign labor and advance the calendar.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/config.json", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&savePath, "save", "s", "", "Path to the nation save file (overrides config)")

	rootCmd.AddCommand(
		&cobra.Command{Use: "status", Short: "Show the nation", Args: cobra.NoArgs, RunE: runStatus},
		&cobra.Command{Use: "techs", Short: "List technologies", Args: cobra.NoArgs, RunE: runTechs},
		&cobra.Command{Use: "research <tech>", Short: "Research a technology", Args: cobra.ExactArgs(1), RunE: runResearch},
		&cobra.Command{Use: "invest <stat>", Short: "Invest natural resources in a stat", Args: cobra.ExactArgs(1), RunE: runInvest},
		&cobra.Command{Use: "labor <role> <delta>", Short: "Move people into or out of a role", Args: cobra.ExactArgs(2), RunE: runLabor},
		&cobra.Command{Use: "advance [months]", Short: "Advance the calendar", Args: cobra.MaximumNArgs(1), RunE: runAdvance},
		&cobra.Command{Use: "reset", Short: "Start a new nation", Args: cobra.NoArgs, RunE: runReset},
		&cobra.Command{Use: "name <nation>", Short: "Name the nation", Args: cobra.ExactArgs(1), RunE: runName},
		&cobra.Command{Use: "leader <name>", Short: "Name the leader", Args: cobra.ExactArgs(1), RunE: runLeader},
	)

	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

// openNation loads the configured save. Without a configured player id the
// save's own player is reused so repeated runs continue one nation.
func openNation() (*game.NationManager, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if savePath != "" {
		cfg.Game.SavePath = savePath
	}

	playerID := cfg.Player.ID
	if playerID == "" && cfg.Game.SavePath != "" {
		saved, err := game.NewGameStateStorage(cfg.Game.SavePath).LoadState()
		if err != nil && !errors.Is(err, game.ErrNoSavedState) {
			return nil, err
		}
		if saved != nil {
			playerID = saved.PlayerID
		}
	}
	if playerID == "" {
		playerID = game.NewStaticIdentity(cfg.Player).PlayerID()
	}

	var graph *tech.Graph
	if cfg.Game.TechDataPath != "" {
		graph, err = tech.LoadFile(cfg.Game.TechDataPath)
	} else {
		graph, err = tech.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tech tree: %w", err)
	}

	return game.NewNationManager(cfg, graph, playerID, nil), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	printStatus(nation.State())
	return nil
}

func printStatus(s *types.NationState) {
	name := s.NationName
	if name == "" {
		name = "Unnamed nation"
	}
	titleColor.Printf("\n%s", name)
	if s.LeaderName != "" {
		titleColor.Printf(" led by %s", s.LeaderName)
	}
	fmt.Printf("\n%s %d, %s\n\n", monthName(s.Month), s.Year, sim.EraForYear(s.Year).Name)

	stats := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Stat", "Value"}))
	for _, stat := range types.Stats {
		v, _ := s.Resources.Get(stat)
		stats.Append([]string{string(stat), fmt.Sprintf("%.1f", v)})
	}
	stats.Render()

	stock := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Resource", "Stock"}))
	for _, kind := range types.NaturalResourceKinds {
		v, _ := s.NaturalResources.Get(kind)
		stock.Append([]string{string(kind), strconv.FormatInt(v, 10)})
	}
	stock.Render()

	p := s.Population
	people := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Men", "Women", "Children", "Workers", "Soldiers", "Scientists", "Idle", "Mood"}),
	)
	people.Append([]string{
		strconv.Itoa(p.Men),
		strconv.Itoa(p.Women),
		strconv.Itoa(p.Children),
		strconv.Itoa(p.Workers),
		strconv.Itoa(p.Soldiers),
		strconv.Itoa(p.Scientists),
		strconv.Itoa(p.Unassigned()),
		fmt.Sprintf("%.0f", p.Mood),
	})
	people.Render()

	done, total := objective.Progress(s.YearlyObjectives)
	fmt.Printf("\nObjectives for %d (%d/%d):\n", s.Year, done, total)
	for _, o := range s.YearlyObjectives {
		if o.Completed {
			successColor.Printf("  ✓ %s\n", o.Description)
		} else {
			fmt.Printf("  · %s (%.0f / %.0f)\n", o.Description, objective.Current(o, s), o.Amount)
		}
	}
	if s.Month == 12 && !s.CanAdvanceYear {
		warnColor.Println("\nComplete every objective to enter the new year.")
	}
	fmt.Println()
}

func runTechs(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	state := nation.State()
	graph := nation.Graph()
	unlocked := tech.Set(state.UnlockedTechs)

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Name", "Era", "Status", "Effects", "Cost"}),
	)
	for _, node := range graph.Nodes() {
		status := "locked"
		switch {
		case unlocked[node.ID]:
			status = "researched"
		case graph.IsAvailable(node.ID, unlocked):
			status = "available"
		}
		costs := sim.ResearchCost(node.ID, state.CurrentEra)
		table.Append([]string{
			node.ID,
			node.Name,
			node.Era,
			status,
			fmt.Sprintf("%v", node.Effects),
			fmt.Sprintf("%s -%.1f, %s -%.1f", costs[0].Stat, costs[0].Amount, costs[1].Stat, costs[1].Amount),
		})
	}
	table.Render()
	return nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	if !nation.SelectTech(args[0]) {
		return fmt.Errorf("cannot research %s", args[0])
	}
	successColor.Printf("✓ Researched %s\n", args[0])
	return nil
}

func runInvest(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	stat := types.Stat(args[0])
	rate := nation.GrowthRate(stat)
	if !nation.InvestInResource(stat) {
		return fmt.Errorf("cannot invest in %s", args[0])
	}
	v, _ := nation.State().Resources.Get(stat)
	successColor.Printf("✓ %s grew %.0f%% to %.1f\n", stat, rate*100, v)
	return nil
}

func runLabor(cmd *cobra.Command, args []string) error {
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", args[1], err)
	}
	nation, err := openNation()
	if err != nil {
		return err
	}
	role := types.Role(args[0])
	if !nation.DistributePeople(role, delta) {
		return fmt.Errorf("cannot move %d people into %s", delta, role)
	}
	count, _ := nation.State().Population.RoleCount(role)
	successColor.Printf("✓ %s: %d\n", role, count)
	return nil
}

func runAdvance(cmd *cobra.Command, args []string) error {
	months := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid month count %q", args[0])
		}
		months = n
	}
	nation, err := openNation()
	if err != nil {
		return err
	}

	for i := 0; i < months; i++ {
		report := nation.AdvanceMonth()
		state := nation.State()
		fmt.Printf("%s %d: +%d born, %d came of age, %d lost, %d food eaten\n",
			monthName(state.Month), state.Year,
			report.Births, report.CameOfAge, report.AttritionLosses, report.FoodConsumed)
		if report.FoodShortage > 0 {
			warnColor.Printf("  food short by %d, mood -%.0f, %d starved\n",
				report.FoodShortage, report.MoodPenalty, report.StarvationDeaths)
		}
		if report.RolledOver {
			successColor.Printf("  ✓ Welcome to %d\n", state.Year)
		}
	}
	printStatus(nation.State())
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	nation.ResetGame()
	successColor.Println("✓ A new nation is born")
	return nil
}

func runName(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	if !nation.SetNation(args[0]) {
		return fmt.Errorf("invalid nation name")
	}
	successColor.Printf("✓ Nation named %s\n", args[0])
	return nil
}

func runLeader(cmd *cobra.Command, args []string) error {
	nation, err := openNation()
	if err != nil {
		return err
	}
	if !nation.SetLeader(args[0]) {
		return fmt.Errorf("invalid leader name")
	}
	successColor.Printf("✓ Leader is now %s\n", args[0])
	return nil
}

var monthNames = [...]string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return "?"
	}
	return monthNames[m-1]
}
