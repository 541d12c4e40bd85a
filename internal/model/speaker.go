// Package model wraps a layer stack into a trainable speaker classifier.
//
// The stack's hidden output is averaged over every axis between the sample
// axis S and the feature axis D, projected to an utterance embedding and
// classified against the speaker labels of the feature dictionary:
//
//	stack → mean over B (and M) → embed → LeakyReLU → classify → cross-entropy
//
// Speaker implements the model side of the training loop, including
// checkpointing of parameters and optimizer state.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/checkpoint"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/optim"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Errors returned by the model.
var (
	ErrNonFiniteLoss = errors.New("model: loss is not finite")
	ErrConfig        = errors.New("model: invalid config")
)

// Config sizes the classifier head and selects the optimizer.
type Config struct {
	EmbeddingSize int
	NumSpeakers   int
	Optimizer     string // "adam" or "sgd"
	LearningRate  float64
	Momentum      float64
}

// Speaker is a layer stack with an embedding and classification head.
type Speaker struct {
	stack    *layers.Stack
	embed    *nn.Linear
	classify *nn.Linear
	head     *nn.Sequential
	opt      optim.Optimizer
	ckpt     *checkpoint.Manager
	step     int
}

// New builds a speaker model on top of stack. The stack must produce a
// hidden feature laid out S×…×D. Snapshots go to ckpt.
func New(stack *layers.Stack, cfg Config, ckpt *checkpoint.Manager, rng *rand.Rand) (*Speaker, error) {
	if stack == nil || ckpt == nil {
		return nil, fmt.Errorf("%w: stack and checkpoint manager are required", ErrConfig)
	}
	if cfg.EmbeddingSize <= 0 || cfg.NumSpeakers <= 0 {
		return nil, fmt.Errorf("%w: embedding size %d, speakers %d", ErrConfig, cfg.EmbeddingSize, cfg.NumSpeakers)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate %v", ErrConfig, cfg.LearningRate)
	}
	out := stack.Output()
	if out.NumAxes() < 2 || out.Axes()[0] != feature.S || out.Last() != feature.D {
		return nil, fmt.Errorf("%w: stack output %s must start with S and end with D", ErrConfig, out)
	}

	s := &Speaker{
		stack:    stack,
		embed:    nn.NewLinear("head.embed", out.LastSize(), cfg.EmbeddingSize, rng),
		classify: nn.NewLinear("head.classify", cfg.EmbeddingSize, cfg.NumSpeakers, rng),
		ckpt:     ckpt,
	}
	s.head = nn.NewSequential(s.embed, nn.LeakyReLU{Slope: nn.DefaultLeakySlope}, s.classify)

	opt, err := optim.New(cfg.Optimizer, nn.Trainable(s), cfg.LearningRate, cfg.Momentum)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	s.opt = opt
	s.Train()
	return s, nil
}

// Parameters returns the stack parameters followed by the head's.
func (s *Speaker) Parameters() []*nn.Parameter {
	return append(s.stack.Parameters(), s.head.Parameters()...)
}

// Stack returns the underlying layer stack.
func (s *Speaker) Stack() *layers.Stack { return s.stack }

// Step returns the number of parameter updates applied.
func (s *Speaker) Step() int { return s.step }

// Train switches dropout and batch norm to training behavior.
func (s *Speaker) Train() {
	s.stack.SetTraining(true)
	s.head.SetTraining(true)
}

// Eval switches dropout and batch norm to inference behavior.
func (s *Speaker) Eval() {
	s.stack.SetTraining(false)
	s.head.SetTraining(false)
}

// LearningRate returns the optimizer's learning rate.
func (s *Speaker) LearningRate() float64 { return s.opt.LR() }

// SetLearningRate changes the optimizer's learning rate.
func (s *Speaker) SetLearningRate(lr float64) { s.opt.SetLR(lr) }

// pooled runs the stack and averages the hidden feature down to S×D.
func (s *Speaker) pooled(tape *autodiff.GradientTape, d *feature.Dict) (*tensor.Tensor, error) {
	out, err := s.stack.Forward(tape, d)
	if err != nil {
		return nil, err
	}
	h, err := out.Hidden()
	if err != nil {
		return nil, err
	}
	x := h.Tensor
	for len(x.Shape()) > 2 {
		x = autodiff.MeanAxis(tape, x, 1)
	}
	return x, nil
}

// logits returns classifier scores [S, speakers] and the labels of d.
func (s *Speaker) logits(tape *autodiff.GradientTape, d *feature.Dict) (*tensor.Tensor, []int, error) {
	labels, err := d.Labels()
	if err != nil {
		return nil, nil, err
	}
	x, err := s.pooled(tape, d)
	if err != nil {
		return nil, nil, err
	}
	return s.head.Forward(tape, x), labels, nil
}

func (s *Speaker) loss(tape *autodiff.GradientTape, d *feature.Dict) (*tensor.Tensor, error) {
	logits, labels, err := s.logits(tape, d)
	if err != nil {
		return nil, err
	}
	loss, err := nn.CrossEntropyLoss(tape, logits, labels)
	if err != nil {
		return nil, err
	}
	if v := loss.Item(); math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %v at step %d", ErrNonFiniteLoss, v, s.step)
	}
	return loss, nil
}

// UpdateParameters runs one forward/backward pass on d and applies an
// optimizer step.
func (s *Speaker) UpdateParameters(ctx context.Context, d *feature.Dict) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	loss, err := s.loss(tape, d)
	if err != nil {
		return err
	}
	grads := autodiff.ScalarBackward(tape, loss)
	nn.AssignGrads(s.Parameters(), grads)
	s.opt.Step(grads)
	s.opt.ZeroGrad()
	s.step++
	return nil
}

// LossValue returns the mean cross-entropy on d without recording
// gradients.
func (s *Speaker) LossValue(ctx context.Context, d *feature.Dict) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	loss, err := s.loss(nil, d)
	if err != nil {
		return 0, err
	}
	return loss.Item(), nil
}

// Accuracy returns the fraction of utterances in d classified correctly.
func (s *Speaker) Accuracy(d *feature.Dict) (float64, error) {
	logits, labels, err := s.logits(nil, d)
	if err != nil {
		return 0, err
	}
	return nn.Accuracy(logits, labels), nil
}

// Embed returns the utterance embeddings [S, EmbeddingSize] for d.
func (s *Speaker) Embed(d *feature.Dict) (*tensor.Tensor, error) {
	x, err := s.pooled(nil, d)
	if err != nil {
		return nil, err
	}
	return s.embed.Forward(nil, x), nil
}

// Save writes parameters and optimizer state under name.
func (s *Speaker) Save(ctx context.Context, name string) error {
	return s.ckpt.Save(ctx, &checkpoint.Snapshot{
		Name:         name,
		Step:         s.step,
		LearningRate: s.opt.LR(),
		Params:       checkpoint.EncodeTensors(nn.StateDict(s)),
		Optimizer:    checkpoint.EncodeTensors(s.opt.StateDict()),
	})
}

// Load restores parameters and optimizer state saved under name. The
// current learning rate is kept, so a decay applied before the reload
// stays in effect. Nothing is modified if the snapshot does not fit the
// model.
func (s *Speaker) Load(ctx context.Context, name string) error {
	snap, err := s.ckpt.Load(ctx, name)
	if err != nil {
		return err
	}
	params, err := checkpoint.DecodeTensors(snap.Params)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	moments, err := checkpoint.DecodeTensors(snap.Optimizer)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	if err := s.checkFits(params); err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}

	// The optimizer load is all or nothing and the parameters were checked
	// above, so a failure here leaves the model untouched.
	lr := s.opt.LR()
	if err := s.opt.LoadStateDict(moments); err != nil {
		return fmt.Errorf("snapshot %s optimizer: %w", name, err)
	}
	if err := nn.LoadStateDict(s, params); err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	s.opt.SetLR(lr)
	s.step = snap.Step
	return nil
}

func (s *Speaker) checkFits(params map[string]*tensor.Tensor) error {
	own := s.Parameters()
	if len(params) != len(own) {
		return fmt.Errorf("has %d tensors, model has %d parameters", len(params), len(own))
	}
	for _, p := range own {
		t, ok := params[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s", p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%s shape %v, want %v", p.Name(), t.Shape(), p.Tensor().Shape())
		}
	}
	return nil
}
