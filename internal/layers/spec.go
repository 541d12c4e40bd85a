package layers

import (
	"fmt"
	"strings"

	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// Spec describes one layer of a stack. The set of implementations is
// closed: InputSpec, FCSpec, ReshapeSpec, DW3Spec and SinenetSpec, always
// passed by value. Build switches over them exhaustively.
type Spec interface {
	// Kind returns the configuration type name of the layer.
	Kind() string
	// DropoutP returns the dropout probability applied to the layer output.
	DropoutP() float64

	isSpec()
}

// InputSpec declares the feature the data loader provides and its layout.
// It must be the first spec of a stack.
type InputSpec struct {
	Key    feature.Key
	Layout feature.Layout
}

// FCSpec is a fully connected layer over the last (D) axis.
type FCSpec struct {
	Size       int
	Activation nn.Activation // nil means linear
	BatchNorm  bool
	Dropout    float64
}

// ReshapeOp selects the transform of a ReshapeSpec.
type ReshapeOp int

// Reshape transforms.
const (
	// WavToWindows unfolds Wav S×T twice into WavWindows S×B×M×T.
	WavToWindows ReshapeOp = iota
	// ConcatWavPitchTauVUV appends normalized log pitch, tau and voicing to
	// each window: S×B×M×T → Hidden S×B×M×(T+3).
	ConcatWavPitchTauVUV
	// FlattenWindows merges micro-windows into features: S×B×M×D → S×B×(M·D).
	FlattenWindows
)

// String returns the configuration name of the op.
func (op ReshapeOp) String() string {
	switch op {
	case WavToWindows:
		return "wav_to_windows"
	case ConcatWavPitchTauVUV:
		return "concat_wav_pitch_tau_vuv"
	case FlattenWindows:
		return "flatten_windows"
	default:
		return fmt.Sprintf("ReshapeOp(%d)", int(op))
	}
}

// Window is one (length, shift) pair of a sliding-window unfold.
type Window struct {
	Len   int
	Shift int
}

// ReshapeSpec is a shape-only transform. Windows is used by WavToWindows:
// the first pair cuts batch items from the waveform, the second cuts
// micro-windows from each batch item.
type ReshapeSpec struct {
	Op      ReshapeOp
	Windows [2]Window
	Dropout float64
}

// DW3Spec is a plain DNN over a window and its (nlf, tau, vuv) triplet:
// linear(T→D) + linear(3→D), optional batch norm, activation.
type DW3Spec struct {
	Size       int
	Activation nn.Activation // nil means LeakyReLU
	BatchNorm  bool
	Dropout    float64
}

// SinenetVariant selects the Sinenet layer architecture.
type SinenetVariant int

// Sinenet variants.
const (
	// SinenetV1 sums linear(2K→D) of the sine projection and linear(3→D)
	// of the triplet.
	SinenetV1 SinenetVariant = iota
	// SinenetV2 runs the projection branch and a parallel DNN branch over
	// the window and triplet, concatenating them to Size+DNNSize features.
	SinenetV2
	// SinenetV1Residual replaces the projection with the window residual
	// after removing its harmonic fit: linear(T→D) + linear(3→D).
	SinenetV1Residual
)

// String returns the configuration name of the variant.
func (v SinenetVariant) String() string {
	switch v {
	case SinenetV1:
		return "Sinenet_V1"
	case SinenetV2:
		return "Sinenet_V2"
	case SinenetV1Residual:
		return "Sinenet_V1_Residual"
	default:
		return fmt.Sprintf("SinenetVariant(%d)", int(v))
	}
}

// SinenetSpec is a Sinenet layer over S×B×M×T windows.
type SinenetSpec struct {
	Variant        SinenetVariant
	Size           int
	NumFreq        int
	DNNSize        int // SinenetV2 only
	Activation     nn.Activation
	BatchNorm      bool
	Regularization float64 // ε added to WWᵀ in the residual solve
	Dropout        float64
}

func (InputSpec) isSpec()   {}
func (FCSpec) isSpec()      {}
func (ReshapeSpec) isSpec() {}
func (DW3Spec) isSpec()     {}
func (SinenetSpec) isSpec() {}

// Kind returns "Input".
func (InputSpec) Kind() string { return "Input" }

// Kind returns "FC".
func (FCSpec) Kind() string { return "FC" }

// Kind returns "Tensor_Reshape".
func (ReshapeSpec) Kind() string { return "Tensor_Reshape" }

// Kind returns "DW3".
func (DW3Spec) Kind() string { return "DW3" }

// Kind returns the variant name.
func (s SinenetSpec) Kind() string { return s.Variant.String() }

// DropoutP returns 0; the input layer never drops.
func (InputSpec) DropoutP() float64 { return 0 }

// DropoutP returns the dropout probability.
func (s FCSpec) DropoutP() float64 { return s.Dropout }

// DropoutP returns the dropout probability.
func (s ReshapeSpec) DropoutP() float64 { return s.Dropout }

// DropoutP returns the dropout probability.
func (s DW3Spec) DropoutP() float64 { return s.Dropout }

// DropoutP returns the dropout probability.
func (s SinenetSpec) DropoutP() float64 { return s.Dropout }

// ParseSpec converts a configuration entry into a Spec.
//
// Recognized types (case-insensitive): Input, Linear, ReLU, LReLU, FC,
// Tensor_Reshape, DW3, Sinenet_V1, Sinenet_V2, Sinenet_V1_Residual.
// Unknown types return an error wrapping ErrUnknownType.
func ParseSpec(cfg config.LayerConfig) (Spec, error) {
	switch strings.ToLower(cfg.Type) {
	case "input":
		return parseInput(cfg)
	case "linear", "relu", "lrelu":
		act, err := nn.ParseActivation(cfg.Type)
		if err != nil {
			return nil, err
		}
		return FCSpec{Size: cfg.Size, Activation: act, BatchNorm: cfg.BatchNorm, Dropout: cfg.DropoutP}, nil
	case "fc":
		act, err := nn.ParseActivation(cfg.Activation)
		if err != nil {
			return nil, err
		}
		return FCSpec{Size: cfg.Size, Activation: act, BatchNorm: cfg.BatchNorm, Dropout: cfg.DropoutP}, nil
	case "tensor_reshape", "reshape":
		return parseReshape(cfg)
	case "dw3":
		act, err := leakyByDefault(cfg.Activation)
		if err != nil {
			return nil, err
		}
		return DW3Spec{Size: cfg.Size, Activation: act, BatchNorm: cfg.BatchNorm, Dropout: cfg.DropoutP}, nil
	case "sinenet_v1", "sinenet_v2", "sinenet_v1_residual":
		act, err := leakyByDefault(cfg.Activation)
		if err != nil {
			return nil, err
		}
		variant := map[string]SinenetVariant{
			"sinenet_v1":          SinenetV1,
			"sinenet_v2":          SinenetV2,
			"sinenet_v1_residual": SinenetV1Residual,
		}[strings.ToLower(cfg.Type)]
		return SinenetSpec{
			Variant:        variant,
			Size:           cfg.Size,
			NumFreq:        cfg.NumFreq,
			DNNSize:        cfg.DNNSize,
			Activation:     act,
			BatchNorm:      cfg.BatchNorm,
			Regularization: cfg.Regularization,
			Dropout:        cfg.DropoutP,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, cfg.Type)
	}
}

// ParseSpecs converts every entry, reporting the index of the first failure.
func ParseSpecs(cfgs []config.LayerConfig) ([]Spec, error) {
	specs := make([]Spec, len(cfgs))
	for i, cfg := range cfgs {
		spec, err := ParseSpec(cfg)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		specs[i] = spec
	}
	return specs, nil
}

func leakyByDefault(name string) (nn.Activation, error) {
	if name == "" {
		return nn.LeakyReLU{Slope: nn.DefaultLeakySlope}, nil
	}
	return nn.ParseActivation(name)
}

// inputFeatures maps the input feature name to its key and axis order.
var inputFeatures = map[string]struct {
	key  feature.Key
	axes string
}{
	"wav":         {feature.Wav, "ST"},
	"wav_windows": {feature.WavWindows, "SBMT"},
	"cmp":         {feature.Hidden, "SBD"},
}

func parseInput(cfg config.LayerConfig) (Spec, error) {
	in, ok := inputFeatures[strings.ToLower(cfg.Feature)]
	if !ok {
		return nil, fmt.Errorf("%w: input feature %q (want wav, wav_windows or cmp)", ErrInvalidSpec, cfg.Feature)
	}
	sizes := make([]int, len(in.axes))
	for i := 0; i < len(in.axes); i++ {
		name := in.axes[i : i+1]
		n, ok := cfg.Dims[name]
		if !ok {
			return nil, fmt.Errorf("%w: input %s needs dimension %s", ErrInvalidSpec, cfg.Feature, name)
		}
		sizes[i] = n
	}
	layout, err := feature.NewLayout(in.axes, sizes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return InputSpec{Key: in.key, Layout: layout}, nil
}

var reshapeOps = map[string]ReshapeOp{
	"wav_to_windows":           WavToWindows,
	"wav_st_2_wav_sbmt":        WavToWindows,
	"concat_wav_pitch_tau_vuv": ConcatWavPitchTauVUV,
	"concat_wav_nlf_tau_vuv":   ConcatWavPitchTauVUV,
	"flatten_windows":          FlattenWindows,
	"h_sbmd_2_h_sbd":           FlattenWindows,
}

func parseReshape(cfg config.LayerConfig) (Spec, error) {
	op, ok := reshapeOps[strings.ToLower(cfg.IOName)]
	if !ok {
		return nil, fmt.Errorf("%w: reshape io_name %q", ErrInvalidSpec, cfg.IOName)
	}
	spec := ReshapeSpec{Op: op, Dropout: cfg.DropoutP}
	if op == WavToWindows {
		if len(cfg.WinLenShiftList) != 2 {
			return nil, fmt.Errorf("%w: %s needs two (len, shift) pairs, got %d", ErrInvalidSpec, op, len(cfg.WinLenShiftList))
		}
		for i, pair := range cfg.WinLenShiftList {
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: window pair %d has %d values", ErrInvalidSpec, i, len(pair))
			}
			spec.Windows[i] = Window{Len: pair[0], Shift: pair[1]}
		}
	}
	return spec, nil
}
