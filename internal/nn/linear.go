package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Linear implements a fully connected (dense) layer over the last axis.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Leading axes (S, B, M) are carried through unchanged.
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
//
// Example:
//
//	fc := nn.NewLinear("layer1", 400, 256, rng)
//	h := fc.Forward(tape, wav) // [S, B, M, 400] -> [S, B, M, 256]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
}

// NewLinear creates a new Linear layer whose parameters are named
// "<name>.weight" and "<name>.bias".
func NewLinear(name string, inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", tensor.Xavier(inFeatures, outFeatures, rng)),
		bias:        NewParameter(name+".bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward computes y = x @ W.T + b.
//
// Panics if the last axis of input is not in_features; layer construction
// validates shapes, so a mismatch here is a programming error.
func (l *Linear) Forward(tape *autodiff.GradientTape, input *tensor.Tensor) *tensor.Tensor {
	if got := input.Shape().Last(); got != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, got))
	}
	return autodiff.Affine(tape, input, l.weight.Tensor(), l.bias.Tensor())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
