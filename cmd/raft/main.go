// Command raft drives the retrieval-augmented fine-tuning workflow:
// configure model roles, check connectivity, generate a synthetic dataset,
// fine-tune the student, deploy it, and evaluate it against the baseline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/config"
	"github.com/zavalabs/raft/pkg/eval"
	"github.com/zavalabs/raft/pkg/logger"
	"github.com/zavalabs/raft/pkg/state"
	"github.com/zavalabs/raft/pkg/workflow"
)

func main() {
	logger.Init()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return workflow.ExitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	switch command {
	case "configure":
		return cmdConfigure(ctx, rest)
	case "check":
		return cmdCheck(ctx, rest)
	case "gen":
		return cmdGen(ctx, rest)
	case "finetune":
		return cmdFinetune(ctx, rest)
	case "deploy":
		return cmdDeploy(ctx, rest)
	case "eval":
		return cmdEval(ctx, rest)
	case "run":
		return cmdRun(ctx, rest)
	case "status":
		return cmdStatus(rest)
	case "clean":
		return cmdClean(rest)
	case "chat":
		return cmdChat(ctx, rest)
	case "help", "-h", "--help":
		usage()
		return workflow.ExitOK
	default:
		color.Red("unknown command %q\n", command)
		usage()
		return workflow.ExitConfig
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: raft <command> [flags]

Commands:
  configure   Select a deployment for every model role from the catalog
  check       Verify every bound endpoint is reachable and authorized
  gen         Generate the synthetic training dataset
  finetune    Upload datasets and run the fine-tuning job
  deploy      Deploy the fine-tuned student model
  eval        Score the student against the baseline with the judge
  run         Run every remaining stage in order
  status      Show workflow progress and bindings
  clean       Roll the workflow back to an earlier stage
  chat        Chat with the deployed student model

Run "raft <command> -h" for command flags.
`)
}

// newRunner loads the workflow config and state every subcommand shares.
func newRunner(configPath string) (*workflow.Runner, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %s", e.Error())
		}
		return nil, &models.ConfigurationError{Field: "config", Reason: "invalid workflow config"}
	}

	st, err := state.Load(state.Path())
	if err != nil {
		return nil, err
	}
	return workflow.NewRunner(cfg, st), nil
}

// finish maps a stage outcome onto the exit code contract and prints any
// accumulated warnings.
func finish(runner *workflow.Runner, err error) int {
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	if warnings := runner.Warnings(); len(warnings) > 0 {
		for _, warning := range warnings {
			color.Yellow("⚠ %s", warning)
		}
		return workflow.ExitWarnings
	}
	return workflow.ExitOK
}

func cmdConfigure(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	catalogPath := fs.String("catalog", "", "Path to the model catalog (ai.yaml)")
	regions := fs.String("region", "", "Comma-separated candidate regions")
	preferredRegion := fs.String("preferred-region", "", "Region to favor when several remain")
	teacherDep := fs.String("teacher", "", "Preferred teacher deployment")
	studentDep := fs.String("student", "", "Preferred student deployment")
	baselineDep := fs.String("baseline", "", "Preferred baseline deployment")
	judgeDep := fs.String("judge", "", "Preferred judge deployment")
	embeddingDep := fs.String("embedding", "", "Preferred embedding deployment")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	opts := workflow.ConfigureOptions{
		CatalogPath:     *catalogPath,
		PreferredRegion: *preferredRegion,
		Preferred: map[models.Role]string{
			models.RoleTeacher:   *teacherDep,
			models.RoleStudent:   *studentDep,
			models.RoleBaseline:  *baselineDep,
			models.RoleJudge:     *judgeDep,
			models.RoleEmbedding: *embeddingDep,
		},
	}
	if *regions != "" {
		opts.Regions = strings.Split(*regions, ",")
	}

	selection, err := runner.Configure(ctx, opts)
	if err != nil {
		return finish(runner, err)
	}

	color.Green("✓ Configured for region %s", selection.Region)
	for _, role := range models.AllRoles {
		if ref, ok := selection.Refs[role]; ok {
			fmt.Printf("  %-10s %s (%s, %s)\n", role, ref.Deployment, ref.Model, ref.Platform)
		}
	}
	return finish(runner, nil)
}

func cmdCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	results, err := runner.Check(ctx)
	for _, result := range results {
		if result.Healthy() {
			color.Green("✓ %-10s %s (%s)", result.Role, result.Deployment, result.Latency.Round(1e6))
		} else {
			color.Red("✗ %-10s %v", result.Role, result.Err)
		}
	}
	if err != nil {
		color.Red("✗ not all endpoints are healthy")
		return workflow.ExitCode(err)
	}
	color.Green("✓ All endpoints healthy")
	return finish(runner, nil)
}

func cmdGen(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	name := fs.String("name", "", "Dataset name")
	docs := fs.String("docs", "", "Directory (or single file) of source documents")
	docsURL := fs.String("docs-url", "", "Documentation site to crawl instead of local files")
	questions := fs.Int("questions", 0, "Questions to generate per chunk")
	distractors := fs.Int("distractors", 0, "Distractor contexts per example")
	chunkSize := fs.Int("chunk-size", 0, "Chunk size in tokens")
	workers := fs.Int("workers", 0, "Concurrent generation workers")
	qaThreshold := fs.Int("qa-threshold", 0, "Stop after this many accepted examples (0 = unlimited)")
	trainSplit := fs.Float64("train-split", 0, "Training split fraction")
	validSplit := fs.Float64("valid-split", 0, "Validation split fraction")
	sampling := fs.String("sampling", "", "Distractor sampling strategy (random|semantic)")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	ds := &runner.Config.Dataset
	if *name != "" {
		ds.Name = *name
	}
	if *docs != "" {
		ds.DocsPath = *docs
		ds.DocsURL = ""
	}
	if *docsURL != "" {
		ds.DocsURL = *docsURL
	}
	if *questions > 0 {
		ds.Questions = *questions
	}
	if *distractors > 0 {
		ds.Distractors = *distractors
	}
	if *chunkSize > 0 {
		ds.ChunkSize = *chunkSize
	}
	if *workers > 0 {
		ds.Workers = *workers
	}
	if *qaThreshold > 0 {
		ds.QAThreshold = *qaThreshold
	}
	if *trainSplit > 0 {
		ds.TrainSplit = *trainSplit
	}
	if *validSplit > 0 {
		ds.ValidSplit = *validSplit
	}
	if *sampling != "" {
		ds.Sampling = *sampling
	}

	bar := newStageProgress()
	runner.OnProgress = bar.update

	out, err := runner.Generate(ctx)
	bar.finish()
	if err != nil {
		return finish(runner, err)
	}

	color.Green("✓ Generated %d examples from %d chunks (%d documents)", out.Examples, out.Chunks, out.Documents)
	fmt.Printf("  dataset %s\n  train   %s\n  valid   %s\n  eval    %s\n",
		out.DatasetPath, out.TrainPath, out.ValidPath, out.EvalPath)
	if out.Report.Duplicates > 0 {
		fmt.Printf("  %d duplicate questions dropped\n", out.Report.Duplicates)
	}
	return finish(runner, nil)
}

func cmdFinetune(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("finetune", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	model := fs.String("model", "", "Base model name, overriding the configured student binding")
	epochs := fs.Int("epochs", 0, "Training epochs")
	seed := fs.Int("seed", 0, "Training seed")
	maxWait := fs.Int("max-wait", 0, "Minutes to wait before reporting the job still running")
	trainingFile := fs.String("training-file", "", "Training JSONL path, overriding the generated one")
	validationFile := fs.String("validation-file", "", "Validation JSONL path, overriding the generated one")
	dryRun := fs.Bool("dry-run", false, "Estimate the training run without uploading anything")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	if *model != "" {
		runner.State.Set(state.KeyStudentBase, *model)
	}
	if *epochs > 0 {
		runner.Config.Finetune.Epochs = *epochs
	}
	if *seed > 0 {
		runner.Config.Finetune.Seed = *seed
	}
	if *maxWait > 0 {
		runner.Config.Finetune.MaxWaitMins = *maxWait
	}
	if *trainingFile != "" {
		runner.State.Set(state.KeyTrainPath, *trainingFile)
	}
	if *validationFile != "" {
		runner.State.Set(state.KeyValidPath, *validationFile)
	}

	spinner := newStageSpinner("Fine-tuning student model...")
	runner.OnProgress = spinner.update

	out, err := runner.Finetune(ctx, workflow.FinetuneOptions{DryRun: *dryRun})
	spinner.finish()
	if out != nil {
		fmt.Printf("  estimate: %s\n", out.Estimate)
	}
	if err != nil {
		return finish(runner, err)
	}
	if out.DryRun {
		color.Cyan("Dry run: nothing was uploaded or submitted")
		return finish(runner, nil)
	}

	color.Green("✓ Fine-tune job %s succeeded: %s", out.Job.ID, out.Job.FineTunedModel)
	return finish(runner, nil)
}

func cmdDeploy(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	deploymentName := fs.String("deployment-name", "", "Deployment name, overriding the derived one")
	modelName := fs.String("model-name", "", "Fine-tuned model to deploy, overriding the job result")
	capacity := fs.Int("capacity", 0, "SKU capacity")
	skipMonitoring := fs.Bool("skip-monitoring", false, "Return after creating the deployment without polling it")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	spinner := newStageSpinner("Deploying fine-tuned model...")
	runner.OnProgress = spinner.update

	out, err := runner.Deploy(ctx, workflow.DeployOptions{
		Name:      *deploymentName,
		ModelName: *modelName,
		Capacity:  *capacity,
		SkipWait:  *skipMonitoring,
	})
	spinner.finish()
	if err != nil {
		return finish(runner, err)
	}

	switch {
	case out.Native:
		color.Green("✓ Student rebound to fine-tuned model %s", out.Deployment)
	case out.Reused:
		color.Green("✓ Reusing existing deployment %s", out.Deployment)
	default:
		color.Green("✓ Deployment %s is live", out.Deployment)
	}
	return finish(runner, nil)
}

func cmdEval(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	withTeacher := fs.Bool("with-teacher", false, "Also evaluate the teacher model")
	skipBaseline := fs.Bool("skip-baseline", false, "Skip the baseline model")
	skipStudent := fs.Bool("skip-student", false, "Skip the fine-tuned student")
	workers := fs.Int("workers", 0, "Concurrent answer-collection workers")
	evalDataset := fs.String("dataset", "", "Eval JSONL path, overriding the generated one")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	if *workers > 0 {
		runner.Config.Eval.Workers = *workers
	}
	if *evalDataset != "" {
		runner.State.Set(state.KeyEvalPath, *evalDataset)
	}

	spinner := newStageSpinner("Evaluating models...")
	runner.OnProgress = spinner.update

	out, err := runner.Evaluate(ctx, workflow.EvalOptions{
		SkipBaseline: *skipBaseline,
		SkipStudent:  *skipStudent,
		WithTeacher:  *withTeacher,
	})
	spinner.finish()
	if err != nil {
		return finish(runner, err)
	}

	printSummaries(out)
	return finish(runner, nil)
}

func cmdRun(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	catalogPath := fs.String("catalog", "", "Path to the model catalog (ai.yaml)")
	regions := fs.String("region", "", "Comma-separated candidate regions")
	dryRun := fs.Bool("dry-run", false, "Stop before uploading anything to the fine-tuning API")
	skipCheck := fs.Bool("skip-check", false, "Skip the connectivity check stage")
	skipGen := fs.Bool("skip-gen", false, "Skip dataset generation")
	skipFinetune := fs.Bool("skip-finetune", false, "Skip fine-tuning")
	skipDeploy := fs.Bool("skip-deploy", false, "Skip deployment")
	skipEval := fs.Bool("skip-eval", false, "Skip evaluation")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	opts := workflow.RunOptions{
		Configure: workflow.ConfigureOptions{CatalogPath: *catalogPath},
		Finetune:  workflow.FinetuneOptions{DryRun: *dryRun},
		Skip: map[models.Stage]bool{
			models.StageChecked:   *skipCheck,
			models.StageGenerated: *skipGen,
			models.StageFinetuned: *skipFinetune,
			models.StageDeployed:  *skipDeploy,
			models.StageEvaluated: *skipEval,
		},
	}
	if *regions != "" {
		opts.Configure.Regions = strings.Split(*regions, ",")
	}

	spinner := newStageSpinner("Running workflow...")
	runner.OnProgress = spinner.update
	runner.OnStage = func(stage models.Stage) {
		spinner.finish()
		color.Blue("\n── %s ──", stage)
	}

	err = runner.Run(ctx, opts)
	spinner.finish()
	if err != nil {
		return finish(runner, err)
	}
	color.Green("✓ Workflow complete")
	return finish(runner, nil)
}

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	fs.Parse(args)

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}

	report := runner.Status()
	stage := string(report.Stage)
	if stage == "" {
		stage = "UNCONFIGURED"
	}
	color.Cyan("Workflow: %s", stage)
	if report.Stage != "" && report.NextStage != report.Stage {
		fmt.Printf("  next      %s\n", report.NextStage)
	}
	if report.Region != "" {
		fmt.Printf("  region    %s\n", report.Region)
	}
	if report.DatasetName != "" {
		fmt.Printf("  dataset   %s\n", report.DatasetName)
	}
	for _, ref := range report.Bindings {
		fmt.Printf("  %-10s %s (%s)\n", ref.Role, ref.Deployment, ref.Model)
	}
	if report.JobID != "" {
		fmt.Printf("  job       %s\n", report.JobID)
	}
	if report.FineTunedModel != "" {
		fmt.Printf("  model     %s\n", report.FineTunedModel)
	}
	return workflow.ExitOK
}

func cmdClean(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to workflow config file")
	to := fs.String("to", "", "Stage to roll back to (CONFIGURED|CHECKED|GENERATED|FINETUNED|DEPLOYED)")
	all := fs.Bool("all", false, "Delete the state file entirely")
	fs.Parse(args)

	if *all {
		if err := os.Remove(state.Path()); err != nil && !os.IsNotExist(err) {
			color.Red("✗ %v", err)
			return workflow.ExitConfig
		}
		color.Green("✓ State file removed")
		return workflow.ExitOK
	}

	target, ok := parseStage(*to)
	if !ok {
		color.Red("✗ unknown stage %q", *to)
		return workflow.ExitConfig
	}

	runner, err := newRunner(*configPath)
	if err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	if err := runner.Clean(target); err != nil {
		color.Red("✗ %v", err)
		return workflow.ExitCode(err)
	}
	color.Green("✓ Rolled back to %s", displayStage(target))
	return workflow.ExitOK
}

func parseStage(name string) (models.Stage, bool) {
	switch strings.ToUpper(name) {
	case "":
		return models.StageNone, true
	case "CONFIGURED":
		return models.StageConfigured, true
	case "CHECKED":
		return models.StageChecked, true
	case "GENERATED":
		return models.StageGenerated, true
	case "FINETUNED":
		return models.StageFinetuned, true
	case "DEPLOYED":
		return models.StageDeployed, true
	}
	return models.StageNone, false
}

func displayStage(stage models.Stage) string {
	if stage == models.StageNone {
		return "UNCONFIGURED"
	}
	return string(stage)
}

func printSummaries(out *workflow.EvalOutput) {
	color.Cyan("\nJudge scores (1-5 scale, unparsed verdicts excluded):")
	fmt.Printf("  %-10s %6s %8s %8s %9s %9s %8s\n",
		"model", "scored", "corr", "corr~", "prec", "prec~", "skipped")
	for _, summary := range out.Summaries {
		fmt.Printf("  %-10s %6d %8.2f %8.2f %9.2f %9.2f %8d\n",
			summary.Model, summary.Scored,
			summary.MeanCorrectness, summary.MedianCorrectness,
			summary.MeanPrecision, summary.MedianPrecision,
			summary.Unparsed+summary.Failed)
	}
	var student, baseline *models.EvaluationSummary
	for i := range out.Summaries {
		switch out.Summaries[i].Model {
		case string(models.RoleStudent):
			student = &out.Summaries[i]
		case string(models.RoleBaseline):
			baseline = &out.Summaries[i]
		}
	}
	if student != nil && baseline != nil {
		dc, dp := eval.Improvement(*student, *baseline)
		color.Green("\n  student vs baseline: correctness %+.2f, precision %+.2f", dc, dp)
	}

	fmt.Printf("\n  results written to %s\n", out.ResultsPath)
}
