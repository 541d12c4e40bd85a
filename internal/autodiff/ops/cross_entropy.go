package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/sinenet/internal/tensor"
)

// CrossEntropyOp represents the mean softmax cross-entropy loss.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Where log_softmax uses the log-sum-exp trick for numerical stability:
//
//	log_softmax(z) = z - (max(z) + log(Σ exp(z - max(z))))
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
type CrossEntropyOp struct {
	logits  *tensor.Tensor // [batch_size, num_classes]
	targets []int
	probs   *tensor.Tensor // softmax(logits), kept for backward
	output  *tensor.Tensor // scalar
}

// CrossEntropyForward computes the loss and the op that records it.
// Returns an error when a target is out of range.
func CrossEntropyForward(logits *tensor.Tensor, targets []int) (*tensor.Tensor, *CrossEntropyOp, error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return nil, nil, fmt.Errorf("cross entropy: logits must be [batch, classes], got %v", shape)
	}
	batch, classes := shape[0], shape[1]
	if len(targets) != batch {
		return nil, nil, fmt.Errorf("cross entropy: %d targets for batch of %d", len(targets), batch)
	}

	probs := tensor.ZerosLike(logits)
	loss := 0.0
	for b := 0; b < batch; b++ {
		target := targets[b]
		if target < 0 || target >= classes {
			return nil, nil, fmt.Errorf("cross entropy: target %d out of range [0, %d)", target, classes)
		}
		row := logits.Row(b)
		maxLogit := math.Inf(-1)
		for _, v := range row {
			maxLogit = math.Max(maxLogit, v)
		}
		sumExp := 0.0
		p := probs.Row(b)
		for i, v := range row {
			p[i] = math.Exp(v - maxLogit)
			sumExp += p[i]
		}
		for i := range p {
			p[i] /= sumExp
		}
		loss -= row[target] - maxLogit - math.Log(sumExp)
	}

	output := tensor.Full(tensor.Shape{1}, loss/float64(batch))
	op := &CrossEntropyOp{logits: logits, targets: targets, probs: probs, output: output}
	return output, op, nil
}

// Backward computes the gradient with respect to logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	batch := op.logits.Shape()[0]
	scale := outputGrad.Item() / float64(batch)
	grad := op.probs.Clone()
	for b, target := range op.targets {
		grad.Row(b)[target] -= 1
	}
	return []*tensor.Tensor{grad.Scale(scale)}
}

// Inputs returns [logits].
func (op *CrossEntropyOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.logits}
}

// Output returns the scalar loss.
func (op *CrossEntropyOp) Output() *tensor.Tensor {
	return op.output
}
