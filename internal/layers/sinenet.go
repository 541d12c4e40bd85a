package layers

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/sinenet"
	"github.com/born-ml/sinenet/internal/tensor"
)

// sinenetLayer projects each window onto its pitch-synchronous sine basis
// and maps the result to hidden features.
//
// Variants:
//   - V1: act(bn(linear(2K→D)(proj) + linear(3→D)(triplet)))
//   - V1Residual: act(bn(linear(T→D)(residual) + linear(3→D)(triplet)))
//   - V2: concat(act(bn(linear(2K→D)(proj))), act(linear(T+3→D')(x, triplet)))
type sinenetLayer struct {
	base
	variant SinenetVariant
	in      feature.Layout
	engine  *sinenet.Engine
	main    *nn.Linear // projection or residual branch
	cond    *nn.Linear // triplet for V1 variants, window plus triplet for V2
	bn      *nn.BatchNorm
	act     nn.Activation
}

func newSinenet(name string, s SinenetSpec, prev feature.Layout, rng *rand.Rand) (*sinenetLayer, error) {
	if err := requireLayout(prev, "SBMT"); err != nil {
		return nil, err
	}
	if s.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSpec, s.Size)
	}
	winLen := prev.LastSize()
	engine, err := sinenet.New(s.NumFreq, winLen, sinenet.WithRegularization(s.Regularization))
	if err != nil {
		return nil, err
	}
	act := s.Activation
	if act == nil {
		act = nn.LeakyReLU{Slope: nn.DefaultLeakySlope}
	}

	l := &sinenetLayer{variant: s.Variant, in: prev, engine: engine, act: act}
	outSize := s.Size
	switch s.Variant {
	case SinenetV1:
		l.main = nn.NewLinear(name+".sine", engine.BasisSize(), s.Size, rng)
		l.cond = nn.NewLinear(name+".cond", 3, s.Size, rng)
	case SinenetV1Residual:
		l.main = nn.NewLinear(name+".residual", winLen, s.Size, rng)
		l.cond = nn.NewLinear(name+".cond", 3, s.Size, rng)
	case SinenetV2:
		if s.DNNSize <= 0 {
			return nil, fmt.Errorf("%w: dnn size %d", ErrInvalidSpec, s.DNNSize)
		}
		l.main = nn.NewLinear(name+".sine", engine.BasisSize(), s.Size, rng)
		l.cond = nn.NewLinear(name+".dnn", winLen+3, s.DNNSize, rng)
		outSize += s.DNNSize
	default:
		return nil, fmt.Errorf("%w: sinenet variant %s", ErrInvalidSpec, s.Variant)
	}
	if s.BatchNorm {
		l.bn = nn.NewBatchNorm(name+".bn", s.Size)
	}
	l.base = base{name: name + "/" + s.Kind(), out: prev.WithLast(feature.D, outSize)}
	return l, nil
}

// Engine returns the projection engine of the layer.
func (l *sinenetLayer) Engine() *sinenet.Engine { return l.engine }

func (l *sinenetLayer) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	x, err := readWindows(in, l.in)
	if err != nil {
		return nil, err
	}
	cond, err := readConditioning(in, l.in)
	if err != nil {
		return nil, err
	}

	// Windows are data; nothing upstream needs their gradient, so the
	// engine runs unrecorded.
	var y *tensor.Tensor
	switch l.variant {
	case SinenetV1:
		proj, err := l.engine.Forward(nil, x, cond.f, cond.tau)
		if err != nil {
			return nil, err
		}
		y = l.combine(tape, l.main.Forward(tape, proj), cond)
	case SinenetV1Residual:
		basis, err := l.engine.Basis(cond.f, cond.tau)
		if err != nil {
			return nil, err
		}
		res, err := l.engine.Residual(nil, x, basis)
		if err != nil {
			return nil, err
		}
		y = l.combine(tape, l.main.Forward(tape, res), cond)
	case SinenetV2:
		proj, err := l.engine.Forward(nil, x, cond.f, cond.tau)
		if err != nil {
			return nil, err
		}
		sine := l.normalize(tape, l.main.Forward(tape, proj))
		sine = l.act.Forward(tape, sine)
		xc, err := cond.withTriplet(x)
		if err != nil {
			return nil, err
		}
		dnn := l.act.Forward(tape, l.cond.Forward(tape, xc))
		if y, err = autodiff.Concat(tape, 3, sine, dnn); err != nil {
			return nil, err
		}
	}

	out := in.CopyExcept(consumedKeys...)
	if err := out.Set(feature.Hidden, y, l.out); err != nil {
		return nil, err
	}
	return out, nil
}

// combine adds the conditioning branch and applies batch norm and
// activation.
func (l *sinenetLayer) combine(tape *autodiff.GradientTape, h *tensor.Tensor, cond conditioning) *tensor.Tensor {
	y := autodiff.Add(tape, h, l.cond.Forward(tape, cond.triplet()))
	return l.act.Forward(tape, l.normalize(tape, y))
}

func (l *sinenetLayer) normalize(tape *autodiff.GradientTape, y *tensor.Tensor) *tensor.Tensor {
	if l.bn == nil {
		return y
	}
	return nn.NormalizeOverAxis(tape, y, 3, l.bn)
}

func (l *sinenetLayer) Parameters() []*nn.Parameter {
	params := append(l.main.Parameters(), l.cond.Parameters()...)
	if l.bn != nil {
		params = append(params, l.bn.Parameters()...)
	}
	return params
}

func (l *sinenetLayer) SetTraining(training bool) {
	if l.bn != nil {
		l.bn.SetTraining(training)
	}
}
