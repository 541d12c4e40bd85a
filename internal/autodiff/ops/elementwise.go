package ops

import "github.com/born-ml/sinenet/internal/tensor"

// AddOp represents element-wise addition: output = a + b.
//
// Backward pass: the output gradient flows unchanged to both inputs.
type AddOp struct {
	a, b   *tensor.Tensor
	output *tensor.Tensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.Tensor) *AddOp {
	return &AddOp{a: a, b: b, output: output}
}

// Backward returns [dy, dy].
func (op *AddOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad, outputGrad}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.a, op.b}
}

// Output returns a + b.
func (op *AddOp) Output() *tensor.Tensor {
	return op.output
}

// LeakyReLUOp represents y = x if x > 0 else slope·x.
//
// With slope 0 this is the plain ReLU; backward passes the gradient where
// the input was positive and scales it by slope elsewhere.
type LeakyReLUOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	slope  float64
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(input, output *tensor.Tensor, slope float64) *LeakyReLUOp {
	return &LeakyReLUOp{input: input, output: output, slope: slope}
}

// Backward computes dx = dy · (x > 0 ? 1 : slope).
func (op *LeakyReLUOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	dx := tensor.ZerosLike(op.input)
	in, g, d := op.input.Data(), outputGrad.Data(), dx.Data()
	for i, v := range in {
		if v > 0 {
			d[i] = g[i]
		} else {
			d[i] = g[i] * op.slope
		}
	}
	return []*tensor.Tensor{dx}
}

// Inputs returns [x].
func (op *LeakyReLUOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the activation.
func (op *LeakyReLUOp) Output() *tensor.Tensor {
	return op.output
}

// DropoutOp represents inverted dropout with a mask fixed in the forward pass.
// The mask holds 0 for dropped elements and 1/(1-p) for kept ones.
type DropoutOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	mask   *tensor.Tensor
}

// NewDropoutOp creates a new DropoutOp.
func NewDropoutOp(input, output, mask *tensor.Tensor) *DropoutOp {
	return &DropoutOp{input: input, output: output, mask: mask}
}

// Backward computes dx = dy · mask.
func (op *DropoutOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad.Mul(op.mask)}
}

// Inputs returns [x].
func (op *DropoutOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the masked tensor.
func (op *DropoutOp) Output() *tensor.Tensor {
	return op.output
}
