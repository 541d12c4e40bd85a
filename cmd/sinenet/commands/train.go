package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/sinenet/internal/checkpoint"
	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/data"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/model"
	"github.com/born-ml/sinenet/internal/train"
)

// trainFlags override experiment fields when set.
type trainFlags struct {
	epochs  int
	runMode string
	overfit bool
	store   string
	seed    int64
	lr      float64
}

func newTrainCmd() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a speaker model",
		Long: `Train the experiment's layer stack with a speaker classification head.

Each epoch trains on epoch_num_batch.train batches, then reports mean losses
over epoch_num_batch.valid batches of the train, valid and test splits. The
best model (by valid loss, or train loss with --overfit) is checkpointed.
When the loss stops improving the learning rate is halved and the best model
reloaded; training ends after max_num_decay decays or num_train_epoch epochs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, exp); err != nil {
				return err
			}
			res, err := runTraining(cmd.Context(), exp, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&f.epochs, "epochs", 0, "override num_train_epoch")
	flags.StringVar(&f.runMode, "run-mode", "", "override run_mode (normal or debug)")
	flags.BoolVar(&f.overfit, "overfit", false, "decide on the train loss instead of the valid loss")
	flags.StringVar(&f.store, "store", "", `checkpoint store: "memory" or a directory`)
	flags.Int64Var(&f.seed, "seed", 0, "override the experiment seed")
	flags.Float64Var(&f.lr, "lr", 0, "override the learning rate")
	return cmd
}

func (f trainFlags) apply(cmd *cobra.Command, exp *config.Experiment) error {
	flags := cmd.Flags()
	if flags.Changed("epochs") {
		exp.Train.NumTrainEpoch = f.epochs
	}
	if flags.Changed("run-mode") {
		exp.Train.RunMode = f.runMode
	}
	if flags.Changed("overfit") {
		exp.Train.Overfit = f.overfit
	}
	if flags.Changed("store") {
		exp.Train.Store = f.store
	}
	if flags.Changed("seed") {
		exp.Seed = f.seed
	}
	if flags.Changed("lr") {
		exp.Model.LearningRate = f.lr
	}
	return exp.Validate()
}

// runTraining wires the experiment's data, stack, model and checkpoint
// store into a controller and runs it. Data geometry that cannot feed the
// layer stack is rejected before anything is opened.
func runTraining(ctx context.Context, exp *config.Experiment, logger *slog.Logger) (train.Result, error) {
	specs, err := layers.ParseSpecs(exp.Layers)
	if err != nil {
		return train.Result{}, err
	}
	if err := data.CheckSpecs(exp.Data, specs); err != nil {
		return train.Result{}, err
	}

	store, err := checkpoint.Open(exp.Train.Store)
	if err != nil {
		return train.Result{}, err
	}
	defer store.Close()
	mgr := checkpoint.NewManager(store)
	logger = logger.With("run_id", mgr.RunID().String())

	src, err := data.New(ctx, exp.Data, exp.Seed)
	if err != nil {
		return train.Result{}, err
	}
	rng := rand.New(rand.NewSource(exp.Seed))
	stack, err := layers.NewStack(specs, rng)
	if err != nil {
		return train.Result{}, err
	}
	for i, l := range stack.Layouts() {
		logger.Debug("layer", "index", i, "layout", l.String())
	}
	m, err := model.New(stack, model.Config{
		EmbeddingSize: exp.Model.EmbeddingSize,
		NumSpeakers:   src.NumSpeakers(),
		Optimizer:     exp.Model.Optimizer,
		LearningRate:  exp.Model.LearningRate,
		Momentum:      exp.Model.Momentum,
	}, mgr, rng)
	if err != nil {
		return train.Result{}, err
	}

	t := exp.Train
	ctrl, err := train.NewController(train.Config{
		RunMode:        train.RunMode(t.RunMode),
		Overfit:        t.Overfit,
		NumTrainEpoch:  t.NumTrainEpoch,
		EpochNumBatch:  t.EpochNumBatch,
		WarmupEpoch:    t.WarmupEpoch,
		EarlyStopEpoch: t.EarlyStopEpoch,
		MaxNumDecay:    t.MaxNumDecay,
		NNetsFileName:  t.NNetsFileName,
		AdditionalActionEpoch: func(logger *slog.Logger, _ train.Model) {
			logAccuracy(ctx, logger, m, src)
		},
	}, m, src, logger)
	if err != nil {
		return train.Result{}, err
	}
	logger.Info("start training", "experiment", exp.Name, "speakers", src.NumSpeakers(), "store", exp.Train.Store)
	return ctrl.Run(ctx)
}

// logAccuracy reports classification accuracy on one valid batch.
func logAccuracy(ctx context.Context, logger *slog.Logger, m *model.Speaker, src data.Source) {
	d, _, err := src.MakeFeedDict(ctx, train.SplitValid)
	if err != nil {
		logger.Warn("accuracy batch", "error", err)
		return
	}
	m.Eval()
	acc, err := m.Accuracy(d)
	if err != nil {
		logger.Warn("accuracy", "error", err)
		return
	}
	logger.Info("valid accuracy", "accuracy", acc, "step", m.Step())
}

func printResult(w io.Writer, res train.Result) {
	t := newTable("epoch", "train", "valid", "test", "lr", "decision")
	for _, e := range res.History {
		t.Row(strconv.Itoa(e.Epoch), fmtLoss(e.Train), fmtLoss(e.Valid), fmtLoss(e.Test),
			strconv.FormatFloat(e.LearningRate, 'g', 4, 64), e.Decision.String())
	}
	fmt.Fprintln(w, titleStyle.Render(res.NNetsFileName))
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, field("best epoch", strconv.Itoa(res.BestEpoch)))
	fmt.Fprintln(w, field("best loss", fmtLoss(res.BestLoss)))
	fmt.Fprintln(w, field("stopped early", strconv.FormatBool(res.Stopped)))
}

func fmtLoss(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
