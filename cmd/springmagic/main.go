package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/san-kum/springmagic/internal/batch"
	"github.com/san-kum/springmagic/internal/config"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/export"
	"github.com/san-kum/springmagic/internal/logging"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/metrics"
	"github.com/san-kum/springmagic/internal/scene"
	"github.com/san-kum/springmagic/internal/sim"
	"github.com/san-kum/springmagic/internal/storage"
	"github.com/san-kum/springmagic/internal/tui"
	"github.com/san-kum/springmagic/internal/update"
	"github.com/san-kum/springmagic/internal/viz"
	"github.com/spf13/cobra"
)

var version = "1.0.1"

const defaultConfigFile = "springmagic.yaml"

var (
	dataDir    string
	configFile string
	logFormat  string
	preset     string
	startFrame int
	endFrame   int
	workers    int
	integrator string
	delay      float64
	weight     float64
	mode       string
	loop       bool
	progress   bool
	preview    bool
	noRecord   bool
	outFile    string
	channel    string
	updateURL  string
	svgFile    string
	record     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "springmagic",
		Short:         "spring bone secondary motion baker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	bakeCmd := &cobra.Command{
		Use:   "bake [scene.yaml]",
		Short: "simulate the selected chains and bake keys",
		Args:  cobra.ExactArgs(1),
		RunE:  runBake,
	}
	bakeCmd.Flags().StringVar(&preset, "preset", "", "apply a preset before baking")
	bakeCmd.Flags().IntVar(&startFrame, "start", 0, "first frame (default from scene)")
	bakeCmd.Flags().IntVar(&endFrame, "end", 0, "last frame (default from scene)")
	bakeCmd.Flags().IntVar(&workers, "parallel", 1, "chains simulated concurrently per depth level")
	bakeCmd.Flags().StringVar(&integrator, "integrator", "implicit", "integrator: implicit, symplectic or rk4")
	bakeCmd.Flags().Float64Var(&delay, "delay", config.DefaultDelay, "spring delay")
	bakeCmd.Flags().Float64Var(&weight, "weight", 1, "bake weight in [0,1]")
	bakeCmd.Flags().StringVar(&mode, "mode", "override", "blend mode: override or additive")
	bakeCmd.Flags().BoolVar(&loop, "loop", false, "match the end frame to the start frame")
	bakeCmd.Flags().BoolVar(&progress, "progress", false, "show interactive progress (q cancels)")
	bakeCmd.Flags().BoolVar(&preview, "preview", false, "draw the baked pose at the end frame")
	bakeCmd.Flags().BoolVar(&noRecord, "no-record", false, "do not store a run record")
	bakeCmd.Flags().StringVar(&outFile, "out", "", "write the baked scene here instead of in place")
	bakeCmd.Flags().StringVar(&svgFile, "svg", "", "write the end frame pose as svg")

	clearCmd := &cobra.Command{
		Use:   "clear [scene.yaml]",
		Short: "remove baked keys and restore the keys they replaced",
		Args:  cobra.ExactArgs(1),
		RunE:  runClear,
	}
	clearCmd.Flags().IntVar(&startFrame, "start", 0, "first frame (default from scene)")
	clearCmd.Flags().IntVar(&endFrame, "end", 0, "last frame (default from scene)")
	clearCmd.Flags().StringVar(&outFile, "out", "", "write the cleared scene here instead of in place")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "manage spring presets",
	}
	presetsCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "list presets", RunE: listPresets},
		&cobra.Command{Use: "save [name]", Short: "save the config spring settings as a preset", Args: cobra.ExactArgs(1), RunE: savePreset},
		&cobra.Command{Use: "load [name]", Short: "load a preset into the config", Args: cobra.ExactArgs(1), RunE: loadPreset},
		&cobra.Command{Use: "reset", Short: "reset the config spring settings to defaults", RunE: resetPreset},
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list bake runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a bake run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [bone]",
		Short: "plot one key channel of a baked bone",
		Args:  cobra.ExactArgs(2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&channel, "channel", "rot_w", "channel to plot")
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "also write the curve as svg")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run a scripted sequence of bakes and sweeps",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&record, "record", false, "store a run record for every step")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a bake run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&outFile, "out", "", "output file (default stdout)")

	updateCmd := &cobra.Command{
		Use:   "check-update",
		Short: "check for a newer release",
		RunE:  checkUpdate,
	}
	updateCmd.Flags().StringVar(&updateURL, "url", "", "update url (default from config)")

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}

	rootCmd.AddCommand(bakeCmd, batchCmd, clearCmd, presetsCmd, listCmd, showCmd, plotCmd, exportCmd, updateCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*logging.Logger, error) {
	return logging.New(os.Stderr, logFormat)
}

// loadConfig reads --config, or springmagic.yaml when it exists, or the
// defaults.
func loadConfig() (*config.Config, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && configFile == "" {
		cfg, err = config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return defaultConfigFile
}

func runBake(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if preset != "" {
		store, err := config.NewPresetStore(cfg.PresetDir)
		if err != nil {
			return err
		}
		if err := store.Apply(preset, cfg); err != nil {
			return fmt.Errorf("preset %s: %w (built-in: %v)", preset, err, config.ListPresets())
		}
	}

	// flags override config values only when given
	if cmd.Flags().Changed("parallel") {
		cfg.Workers = workers
	}
	if cmd.Flags().Changed("integrator") {
		cfg.Integrator = integrator
	}
	if cmd.Flags().Changed("delay") {
		cfg.Spring.Delay = delay
	}
	if cmd.Flags().Changed("weight") {
		cfg.Bake.Weight = weight
	}
	if cmd.Flags().Changed("mode") {
		cfg.Bake.Mode = mode
	}
	if cmd.Flags().Changed("loop") {
		cfg.Bake.Loop = loop
	}

	sc, err := scene.Load(args[0])
	if err != nil {
		return err
	}
	start, end := sc.Start, sc.End
	if cmd.Flags().Changed("start") {
		start = startFrame
	}
	if cmd.Flags().Changed("end") {
		end = endFrame
	}

	bake, err := sc.Prepare(cfg, start, end)
	if err != nil {
		return err
	}

	runLog := log.WithRun(logging.NewRunID())
	baker := sim.New(runLog.Logger)
	for _, m := range metrics.Standard() {
		baker.AddMetric(m)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	began := time.Now()
	var res *sim.Result
	run := func(ctx context.Context, obs dynamo.Observer) error {
		if obs != nil {
			baker.AddObserver(obs)
		}
		var err error
		res, err = baker.Run(ctx, bake.Input)
		return err
	}
	if progress {
		err = tui.Run(ctx, "baking "+sc.Name, end-start+1, os.Stderr, run)
	} else {
		err = run(ctx, nil)
	}
	if errors.Is(err, dynamo.ErrCanceled) {
		runLog.Warn("bake canceled, scene left unchanged")
		return err
	}
	if err != nil {
		runLog.Failure("bake failed", err, "scene", sc.Name)
		return err
	}
	elapsed := time.Since(began)

	written := sim.Commit(bake.Action, res)
	sc.SetAnimation(bake.Action)
	out := args[0]
	if outFile != "" {
		out = outFile
	}
	if err := scene.Save(out, sc); err != nil {
		return err
	}
	runLog.Info("keys written", "keys", written, "scene", out)

	fmt.Print(viz.Report(res.Report, res.Metrics, elapsed))

	if !noRecord {
		st := storage.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.RunMetadata{
			Scene:      sc.Name,
			Armature:   bake.Input.Armature.Name,
			FPS:        bake.Input.FPS,
			Integrator: cfg.Integrator,
			Params:     bake.Input.Params,
		}, res)
		if err != nil {
			return err
		}
		fmt.Printf("saved: %s\n", runID)
	}

	if preview || svgFile != "" {
		arm := bake.Input.Armature
		world := arm.EvaluatePose(bake.Action, float64(end))
		segs := make([]viz.Segment, arm.Len())
		for i := range segs {
			segs[i] = viz.Segment{Head: world[i].Pos, Tail: world[i].Point(mathx.AxisY.Mul(arm.Length(i)))}
		}
		canvas := viz.PoseCanvas(segs, 40, 12)
		if preview {
			fmt.Print(viz.Panel.Render(canvas.String()), "\n")
		}
		if svgFile != "" {
			if err := export.WriteFile(svgFile, export.CanvasToSVG(canvas, 4)); err != nil {
				return err
			}
			fmt.Printf("pose written to %s\n", svgFile)
		}
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	scenario, err := batch.LoadScenario(args[0])
	if err != nil {
		return err
	}
	presets, err := config.NewPresetStore(cfg.PresetDir)
	if err != nil {
		return err
	}
	runLog := log.WithRun(logging.NewRunID())
	r := &batch.Runner{
		Config:  cfg,
		Presets: presets,
		Log:     runLog.Logger,
	}
	if record {
		r.Store = storage.New(cfg.DataDir)
	}
	for i := range scenario.Steps {
		scenario.Steps[i].Record = scenario.Steps[i].Record || record
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	steps, sweeps, err := r.RunScenario(ctx, scenario)
	if err != nil {
		runLog.Failure("batch failed", err, "scenario", scenario.Name)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if len(steps) > 0 {
		fmt.Fprintln(w, "STEP\tSCENE\tCHAINS\tKEYS\tPEAK DEV\tRUN")
		for _, s := range steps {
			fmt.Fprintf(w, "%d\t%s\t%d/%d\t%d\t%.4f\t%s\n", s.Step, s.Out, s.Report.Baked, s.Report.Chains, s.Keys, s.Metrics["peak_deviation"], s.RunID)
		}
	}
	for i, sw := range sweeps {
		fmt.Fprintf(w, "\nSWEEP %d: %s\n", i+1, scenario.Sweeps[i].Param)
		fmt.Fprintln(w, "VALUE\tCHAINS\tPEAK DEV\tMEAN DEV\tSETTLE")
		for _, res := range sw {
			fmt.Fprintf(w, "%g\t%d\t%.4f\t%.4f\t%g\n", res.Value, res.Baked, res.Metrics["peak_deviation"], res.Metrics["mean_deviation"], res.Metrics["settle_frame"])
		}
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func runClear(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	sc, err := scene.Load(args[0])
	if err != nil {
		return err
	}
	start, end := sc.Start, sc.End
	if cmd.Flags().Changed("start") {
		start = startFrame
	}
	if cmd.Flags().Changed("end") {
		end = endFrame
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bake, err := sc.Prepare(cfg, start, end)
	if err != nil {
		return err
	}

	n, err := sim.Clear(bake.Action, bake.Bones, start, end)
	if err != nil {
		return err
	}
	sc.SetAnimation(bake.Action)
	out := args[0]
	if outFile != "" {
		out = outFile
	}
	if err := scene.Save(out, sc); err != nil {
		return err
	}
	log.Info("baked keys cleared", "keys", n, "start", start, "end", end, "scene", out)
	fmt.Printf("cleared %d keys\n", n)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tDELAY\tRECURSION\tSTRENGTH")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\tbuilt-in\t%g\t%g\t%g\n", name, p.Delay, p.Recursion, p.Strength)
	}

	store, err := config.NewPresetStore(cfg.PresetDir)
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := store.Load(name)
		if err != nil {
			fmt.Fprintf(w, "%s\tunreadable\t-\t-\t-\n", name)
			continue
		}
		c := config.DefaultConfig()
		data.Apply(c)
		fmt.Fprintf(w, "%s\tuser\t%g\t%g\t%g\n", name, c.Spring.Delay, c.Spring.Recursion, c.Spring.Strength)
	}
	return w.Flush()
}

func savePreset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := config.NewPresetStore(cfg.PresetDir)
	if err != nil {
		return err
	}
	if err := store.Save(args[0], config.Capture(cfg)); err != nil {
		return err
	}
	fmt.Printf("saved preset: %s\n", config.SanitizeName(args[0]))
	return nil
}

func loadPreset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := config.NewPresetStore(cfg.PresetDir)
	if err != nil {
		return err
	}
	if err := store.Apply(args[0], cfg); err != nil {
		return err
	}
	if err := config.Save(configPath(), cfg); err != nil {
		return err
	}
	fmt.Printf("loaded preset %s into %s\n", args[0], configPath())
	return nil
}

func resetPreset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Reset()
	if err := config.Save(configPath(), cfg); err != nil {
		return err
	}
	fmt.Println("settings reset to default")
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	fmt.Print(viz.Runs(runs))
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	meta, err := storage.New(cfg.DataDir).Load(args[0])
	if err != nil {
		return err
	}
	fmt.Print(viz.Run(meta))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	frames, values, err := storage.New(cfg.DataDir).Channel(args[0], args[1], channel)
	if err != nil {
		return err
	}
	fmt.Print(viz.PlotChannel(frames, values, args[1]+" "+channel))
	if svgFile != "" {
		if err := export.WriteFile(svgFile, export.ChannelToSVG(frames, values, 640, 240, "")); err != nil {
			return err
		}
		fmt.Printf("curve written to %s\n", svgFile)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	if outFile == "" {
		return st.Export(os.Stdout, args[0])
	}
	if err := st.ExportFile(outFile, args[0]); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outFile)
	return nil
}

func checkUpdate(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url := cfg.UpdateURL
	if updateURL != "" {
		url = updateURL
	}
	ctx, cancel := context.WithTimeout(context.Background(), update.DefaultTimeout)
	defer cancel()

	st, err := update.NewChecker(url).Check(ctx, version)
	if err != nil {
		// the check is advisory; report and carry on
		log.Warn("update check failed", "error", err)
		fmt.Println("update check failed:", err)
		return nil
	}
	fmt.Println(st.Message())
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := configPath()
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
