// Package optim implements optimization algorithms for training the speaker
// model.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Example usage:
//
//	opt := optim.NewAdam(nn.Trainable(model), optim.AdamConfig{LR: 0.001})
//
//	tape.StartRecording()
//	loss, _ := model.Loss(tape, batch)
//	grads := autodiff.ScalarBackward(tape, loss)
//	opt.Step(grads)
//	opt.ZeroGrad()
package optim

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Errors returned by the optimizers.
var (
	// ErrUnknownOptimizer is returned by New for an unrecognized name.
	ErrUnknownOptimizer = errors.New("optim: unknown optimizer")
	// ErrForeignState is returned by LoadStateDict for state saved by a
	// different optimizer or for a different parameter list.
	ErrForeignState = errors.New("optim: state belongs to another optimizer")
)

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameters
//   - ZeroGrad: Clear gradients before next iteration
//   - LR / SetLR: Read and change the learning rate (halved on decay)
//   - StateDict / LoadStateDict: Persist moment buffers with a checkpoint
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from a tape backward pass, keyed by parameter
	// tensor, and updates parameters in-place.
	Step(grads map[*tensor.Tensor]*tensor.Tensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR updates the learning rate.
	SetLR(lr float64)

	// StateDict returns copies of the optimizer buffers.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict restores buffers saved by StateDict. On error the
	// optimizer is left unchanged.
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// New creates the optimizer called name ("adam" or "sgd") over params.
// momentum only applies to SGD.
func New(name string, params []*nn.Parameter, lr, momentum float64) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "adam":
		return NewAdam(params, AdamConfig{LR: lr}), nil
	case "sgd":
		return NewSGD(params, SGDConfig{LR: lr, Momentum: momentum}), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOptimizer, name)
	}
}

// getGradient retrieves the gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient(param *nn.Parameter, grads map[*tensor.Tensor]*tensor.Tensor) *tensor.Tensor {
	if param == nil || param.IsBuffer() {
		return nil
	}
	return grads[param.Tensor()]
}

// loadBuffers fills dst for every parameter whose key is present in state,
// checking shapes. Keys are "<prefix>.<param index>".
func loadBuffers(prefix string, params []*nn.Parameter, state map[string]*tensor.Tensor, dst map[*nn.Parameter]*tensor.Tensor) error {
	for i, param := range params {
		key := fmt.Sprintf("%s.%d", prefix, i)
		buf, ok := state[key]
		if !ok {
			continue
		}
		if !buf.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("%s shape mismatch for parameter %d (%s): expected %v, got %v",
				prefix, i, param.Name(), param.Tensor().Shape(), buf.Shape())
		}
		dst[param] = buf.Clone()
	}
	return nil
}

// checkKeys rejects state entries other than "<prefix>.<param index>" for
// the given prefixes and the extra names.
func checkKeys(state map[string]*tensor.Tensor, numParams int, prefixes []string, extra ...string) error {
	for _, key := range slices.Sorted(maps.Keys(state)) {
		if slices.Contains(extra, key) {
			continue
		}
		known := false
		for _, prefix := range prefixes {
			for i := 0; i < numParams && !known; i++ {
				known = key == fmt.Sprintf("%s.%d", prefix, i)
			}
		}
		if !known {
			return fmt.Errorf("%w: unexpected entry %q", ErrForeignState, key)
		}
	}
	return nil
}

// saveBuffers is the inverse of loadBuffers.
func saveBuffers(prefix string, params []*nn.Parameter, src map[*nn.Parameter]*tensor.Tensor, state map[string]*tensor.Tensor) {
	for i, param := range params {
		if buf, ok := src[param]; ok {
			state[fmt.Sprintf("%s.%d", prefix, i)] = buf.Clone()
		}
	}
}
