package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrConfig is wrapped by invalid controller configurations.
var ErrConfig = errors.New("train: invalid config")

// Controller runs training epochs and applies the early-stopping policy.
type Controller struct {
	cfg    Config
	model  Model
	data   DataLoader
	logger *slog.Logger
	policy *Policy
	now    func() time.Time
}

// NewController validates cfg and creates a controller. A nil logger
// discards output.
func NewController(cfg Config, model Model, data DataLoader, logger *slog.Logger) (*Controller, error) {
	if model == nil || data == nil {
		return nil, fmt.Errorf("%w: model and data loader are required", ErrConfig)
	}
	switch cfg.RunMode {
	case "":
		cfg.RunMode = Normal
	case Normal, Debug:
	default:
		return nil, fmt.Errorf("%w: run mode %q", ErrConfig, cfg.RunMode)
	}
	if cfg.NumTrainEpoch <= 0 {
		return nil, fmt.Errorf("%w: num_train_epoch %d", ErrConfig, cfg.NumTrainEpoch)
	}
	if cfg.EpochNumBatch[SplitTrain] <= 0 {
		return nil, fmt.Errorf("%w: epoch_num_batch[%s] must be positive", ErrConfig, SplitTrain)
	}
	if cfg.RunMode == Normal && cfg.EpochNumBatch[SplitValid] <= 0 {
		return nil, fmt.Errorf("%w: epoch_num_batch[%s] must be positive", ErrConfig, SplitValid)
	}
	if cfg.NNetsFileName == "" {
		return nil, fmt.Errorf("%w: nnets file name is required", ErrConfig)
	}
	if cfg.Overfit && cfg.RunMode == Normal {
		cfg.NNetsFileName += OverfitSuffix
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		cfg:    cfg,
		model:  model,
		data:   data,
		logger: logger,
		policy: NewPolicy(cfg.WarmupEpoch, cfg.EarlyStopEpoch, cfg.MaxNumDecay),
		now:    time.Now,
	}, nil
}

// Phase returns the current policy phase.
func (c *Controller) Phase() Phase {
	return c.policy.Phase()
}

// State returns the optimization state with the model's learning rate.
func (c *Controller) State() State {
	s := c.policy.State()
	s.LearningRate = c.model.LearningRate()
	return s
}

// NNetsFileName returns the checkpoint name, including the overfit suffix.
func (c *Controller) NNetsFileName() string {
	return c.cfg.NNetsFileName
}

// Run trains until the policy finishes or NumTrainEpoch is reached.
// Failures from the model or data loader end the run and are returned
// wrapped with the epoch they occurred in.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	if c.cfg.RunMode == Debug {
		return c.runDebug(ctx)
	}
	return c.runNormal(ctx)
}

func (c *Controller) runNormal(ctx context.Context) (Result, error) {
	decideOn := SplitValid
	if c.cfg.Overfit {
		decideOn = SplitTrain
		c.logger.Info("training without validation", "model", c.cfg.NNetsFileName)
	}

	res := Result{NNetsFileName: c.cfg.NNetsFileName}
	for epoch := 1; epoch <= c.cfg.NumTrainEpoch; epoch++ {
		start := c.now()
		c.logger.Info("start training epoch", "epoch", epoch, "phase", c.Phase())
		if err := c.trainEpoch(ctx); err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		trained := c.now()

		losses, err := c.evalEpoch(ctx, epoch)
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		evaluated := c.now()

		record := EpochLoss{
			Epoch: epoch,
			Train: losses[SplitTrain],
			Valid: losses[SplitValid],
			Test:  losses[SplitTest],
		}
		finished, err := c.finishEpoch(ctx, &res, record, losses[decideOn])
		if err != nil || finished {
			return res, err
		}
		c.logger.Info("epoch time", "epoch", epoch,
			"train", trained.Sub(start), "valid", evaluated.Sub(trained))
		c.additionalAction()
	}
	c.logEnd(res, "reach num_train_epoch")
	return res, nil
}

func (c *Controller) runDebug(ctx context.Context) (Result, error) {
	c.logger.Info("training with single batch", "model", c.cfg.NNetsFileName)
	d, _, err := c.data.MakeFeedDict(ctx, SplitTrain)
	if err != nil {
		return Result{}, fmt.Errorf("make %s feed dict: %w", SplitTrain, err)
	}

	res := Result{NNetsFileName: c.cfg.NNetsFileName}
	for epoch := 1; epoch <= c.cfg.NumTrainEpoch; epoch++ {
		start := c.now()
		c.model.Train()
		for b := 0; b < c.cfg.EpochNumBatch[SplitTrain]; b++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := c.model.UpdateParameters(ctx, d); err != nil {
				return res, fmt.Errorf("epoch %d: update: %w", epoch, err)
			}
		}
		trained := c.now()

		c.model.Eval()
		loss, err := c.model.LossValue(ctx, d)
		if err != nil {
			return res, fmt.Errorf("epoch %d: loss: %w", epoch, err)
		}
		c.logger.Info("epoch loss", "epoch", epoch, "loss", loss)

		finished, err := c.finishEpoch(ctx, &res, EpochLoss{Epoch: epoch, Train: loss}, loss)
		if err != nil || finished {
			return res, err
		}
		c.logger.Info("epoch time", "epoch", epoch, "train", trained.Sub(start), "valid", c.now().Sub(trained))
		c.additionalAction()
	}
	c.logEnd(res, "reach num_train_epoch")
	return res, nil
}

// trainEpoch runs EpochNumBatch["train"] updates on fresh batches.
func (c *Controller) trainEpoch(ctx context.Context) error {
	c.model.Train()
	var loadTime, modelTime time.Duration
	for b := 0; b < c.cfg.EpochNumBatch[SplitTrain]; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := c.now()
		d, _, err := c.data.MakeFeedDict(ctx, SplitTrain)
		if err != nil {
			return fmt.Errorf("make %s feed dict: %w", SplitTrain, err)
		}
		loaded := c.now()
		if err := c.model.UpdateParameters(ctx, d); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		loadTime += loaded.Sub(start)
		modelTime += c.now().Sub(loaded)
	}
	c.logger.Info("train time", "load", loadTime, "model", modelTime)
	return nil
}

// evalEpoch returns the mean loss of EpochNumBatch["valid"] batches for
// each split.
func (c *Controller) evalEpoch(ctx context.Context, epoch int) (map[string]float64, error) {
	c.model.Eval()
	n := c.cfg.EpochNumBatch[SplitValid]
	losses := make(map[string]float64, 3)
	var loadTime, modelTime time.Duration
	for _, split := range []string{SplitTrain, SplitValid, SplitTest} {
		total := 0.0
		for b := 0; b < n; b++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			start := c.now()
			d, _, err := c.data.MakeFeedDict(ctx, split)
			if err != nil {
				return nil, fmt.Errorf("make %s feed dict: %w", split, err)
			}
			loaded := c.now()
			loss, err := c.model.LossValue(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("%s loss: %w", split, err)
			}
			total += loss
			loadTime += loaded.Sub(start)
			modelTime += c.now().Sub(loaded)
		}
		losses[split] = total / float64(n)
	}
	c.logger.Info("valid time", "load", loadTime, "model", modelTime)
	c.logger.Info("epoch loss", "epoch", epoch,
		"train", losses[SplitTrain], "valid", losses[SplitValid], "test", losses[SplitTest])
	return losses, nil
}

// finishEpoch applies the policy decision for loss and appends record to
// res. It reports whether training is over.
func (c *Controller) finishEpoch(ctx context.Context, res *Result, record EpochLoss, loss float64) (bool, error) {
	d, err := c.apply(ctx, record.Epoch, loss)
	record.Decision = d
	record.LearningRate = c.model.LearningRate()
	res.History = append(res.History, record)
	res.Epochs = record.Epoch
	s := c.policy.State()
	res.BestLoss, res.BestEpoch = s.BestLoss, s.BestEpoch
	if err != nil {
		return true, fmt.Errorf("epoch %d: %w", record.Epoch, err)
	}
	if d == Finish {
		res.Stopped = true
		c.logEnd(*res, "stop early")
		return true, nil
	}
	return false, nil
}

// apply observes loss and performs the side effects of the decision.
func (c *Controller) apply(ctx context.Context, epoch int, loss float64) (Decision, error) {
	d := c.policy.Observe(epoch, loss)
	s := c.policy.State()
	name := c.cfg.NNetsFileName
	switch d {
	case Improved:
		c.logger.Info("loss reduced, saving model", "model", name, "loss", loss)
		if err := c.model.Save(ctx, name); err != nil {
			return d, fmt.Errorf("save %s: %w", name, err)
		}
	case Worse:
		c.logger.Info("loss increased", "early_stop", s.EarlyStop)
	case Decay:
		lr := c.model.LearningRate() * 0.5
		c.logger.Info("reduce learning rate", "lr", lr, "num_decay", s.NumDecay)
		c.model.SetLearningRate(lr)
		c.logger.Info("loading previous best model", "model", name, "best_epoch", s.BestEpoch)
		if err := c.model.Load(ctx, name); err != nil {
			return d, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return d, nil
}

func (c *Controller) additionalAction() {
	if c.cfg.AdditionalActionEpoch != nil {
		c.cfg.AdditionalActionEpoch(c.logger, c.model)
	}
}

func (c *Controller) logEnd(res Result, reason string) {
	c.logger.Info(reason,
		"best_epoch", res.BestEpoch, "best_loss", res.BestLoss, "model", res.NNetsFileName, "phase", c.Phase())
}
