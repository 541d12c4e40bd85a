package layers_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/signal"
	"github.com/born-ml/sinenet/internal/sinenet"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Two sequences of 1600 samples cut into 4 batch items of 4 windows of 400.
const (
	numSeq   = 2
	numSamp  = 1600
	numItems = 4
	numWin   = 4
	winLen   = 400
)

var testWindows = [2]layers.Window{{Len: 640, Shift: 320}, {Len: 400, Shift: 80}}

func wavInput() layers.InputSpec {
	return layers.InputSpec{Key: feature.Wav, Layout: feature.MustLayout("ST", numSeq, numSamp)}
}

func toWindows() layers.ReshapeSpec {
	return layers.ReshapeSpec{Op: layers.WavToWindows, Windows: testWindows}
}

// batch builds a waveform with per-window pitch, tau and voicing.
// With nlf set the pitch is given as normalized log F0 instead of Hz.
func batch(t *testing.T, rng *rand.Rand, nlf bool) *feature.Dict {
	t.Helper()
	d := feature.NewDict()
	wav := tensor.Randn(tensor.Shape{numSeq, numSamp}, rng)
	require.NoError(t, d.Set(feature.Wav, wav, feature.MustLayout("ST", numSeq, numSamp)))

	pitchShape := tensor.Shape{numSeq, numItems, numWin}
	f0 := tensor.Uniform(pitchShape, 100, 250, rng)
	tau := tensor.ZerosLike(f0)
	vuv := tensor.ZerosLike(f0)
	for i, f := range f0.Data() {
		start := float64((i/numWin%numItems)*320+(i%numWin)*80) / signal.SampleRate
		tau.Data()[i] = signal.Tau(start, f)
		vuv.Data()[i] = signal.Voicing(f)
	}
	sbm := feature.MustLayout("SBM", numSeq, numItems, numWin)
	if nlf {
		require.NoError(t, d.Set(feature.NormLogF0, signal.NormLogF0(f0), sbm))
	} else {
		require.NoError(t, d.Set(feature.F0, f0, sbm))
	}
	require.NoError(t, d.Set(feature.Tau, tau, sbm))
	require.NoError(t, d.Set(feature.VUV, vuv, sbm))
	d.SetLabels([]int{0, 1})
	return d
}

func TestWavToWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	stack, err := layers.NewStack([]layers.Spec{wavInput(), toWindows()}, rng)
	require.NoError(t, err)
	assert.Equal(t, "SBMT[2 4 4 400]", stack.Output().String())

	in := batch(t, rng, false)
	out, err := stack.Forward(nil, in)
	require.NoError(t, err)

	assert.False(t, out.Has(feature.Wav))
	assert.True(t, out.Has(feature.F0))
	assert.True(t, out.Has(feature.Speaker))

	wav, _ := in.Tensor(feature.Wav)
	win, err := out.Tensor(feature.WavWindows)
	require.NoError(t, err)
	for _, idx := range [][4]int{{0, 0, 0, 0}, {1, 2, 3, 17}, {0, 3, 1, 399}} {
		s, b, m, k := idx[0], idx[1], idx[2], idx[3]
		assert.Equal(t, wav.At(s, b*320+m*80+k), win.At(s, b, m, k), "window %v", idx)
	}
}

// TestHiddenWindowsFallback feeds the same windows once as WavWindows and
// once as hidden features; every windowed layer must read either.
func TestHiddenWindowsFallback(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	framing, err := layers.NewStack([]layers.Spec{wavInput(), toWindows()}, rng)
	require.NoError(t, err)
	framed, err := framing.Forward(nil, batch(t, rng, false))
	require.NoError(t, err)
	windows, err := framed.Require(feature.WavWindows)
	require.NoError(t, err)

	asHidden := framed.CopyExcept(feature.WavWindows)
	require.NoError(t, asHidden.Set(feature.Hidden, windows.Tensor, windows.Layout))

	for _, spec := range []layers.Spec{
		layers.DW3Spec{Size: 6},
		layers.SinenetSpec{Variant: layers.SinenetV1, Size: 6, NumFreq: 4},
		layers.ReshapeSpec{Op: layers.ConcatWavPitchTauVUV},
	} {
		t.Run(spec.Kind(), func(t *testing.T) {
			build := func(key feature.Key) *layers.Stack {
				stack, err := layers.NewStack([]layers.Spec{
					layers.InputSpec{Key: key, Layout: windows.Layout}, spec,
				}, rand.New(rand.NewSource(9)))
				require.NoError(t, err)
				stack.SetTraining(false)
				return stack
			}
			want, err := build(feature.WavWindows).Forward(nil, framed)
			require.NoError(t, err)
			got, err := build(feature.Hidden).Forward(nil, asHidden)
			require.NoError(t, err)

			wh, err := want.Tensor(feature.Hidden)
			require.NoError(t, err)
			gh, err := got.Tensor(feature.Hidden)
			require.NoError(t, err)
			assert.InDeltaSlice(t, wh.Data(), gh.Data(), 1e-12)
		})
	}
}

func TestStack_ShapeInference(t *testing.T) {
	tests := []struct {
		name   string
		specs  []layers.Spec
		layout []string
	}{
		{
			name: "sinenet v1 into fc",
			specs: []layers.Spec{
				wavInput(), toWindows(),
				layers.SinenetSpec{Variant: layers.SinenetV1, Size: 16, NumFreq: 8, BatchNorm: true},
				layers.ReshapeSpec{Op: layers.FlattenWindows},
				layers.FCSpec{Size: 12, Activation: nn.ReLU{}, BatchNorm: true, Dropout: 0.2},
			},
			layout: []string{"ST[2 1600]", "SBMT[2 4 4 400]", "SBMD[2 4 4 16]", "SBD[2 4 64]", "SBD[2 4 12]"},
		},
		{
			name: "sinenet v2 doubles",
			specs: []layers.Spec{
				wavInput(), toWindows(),
				layers.SinenetSpec{Variant: layers.SinenetV2, Size: 16, DNNSize: 16, NumFreq: 8},
			},
			layout: []string{"ST[2 1600]", "SBMT[2 4 4 400]", "SBMD[2 4 4 32]"},
		},
		{
			name: "sinenet residual",
			specs: []layers.Spec{
				wavInput(), toWindows(),
				layers.SinenetSpec{Variant: layers.SinenetV1Residual, Size: 10, NumFreq: 8, Regularization: 1e-8},
				layers.ReshapeSpec{Op: layers.FlattenWindows},
			},
			layout: []string{"ST[2 1600]", "SBMT[2 4 4 400]", "SBMD[2 4 4 10]", "SBD[2 4 40]"},
		},
		{
			name: "dw3",
			specs: []layers.Spec{
				wavInput(), toWindows(),
				layers.DW3Spec{Size: 8, BatchNorm: true},
			},
			layout: []string{"ST[2 1600]", "SBMT[2 4 4 400]", "SBMD[2 4 4 8]"},
		},
		{
			name: "concat then fc",
			specs: []layers.Spec{
				wavInput(), toWindows(),
				layers.ReshapeSpec{Op: layers.ConcatWavPitchTauVUV},
				layers.FCSpec{Size: 6},
			},
			layout: []string{"ST[2 1600]", "SBMT[2 4 4 400]", "SBMD[2 4 4 403]", "SBMD[2 4 4 6]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack, err := layers.NewStack(tt.specs, rand.New(rand.NewSource(2)))
			require.NoError(t, err)
			got := make([]string, 0, stack.Len())
			for _, l := range stack.Layouts() {
				got = append(got, l.String())
			}
			assert.Equal(t, tt.layout, got)

			// Shapes do not depend on content.
			for seed := int64(0); seed < 2; seed++ {
				out, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(seed)), seed == 1))
				require.NoError(t, err)
				h, err := out.Hidden()
				require.NoError(t, err)
				assert.True(t, stack.Output().Matches(h.Tensor.Shape()))
				assert.True(t, h.Tensor.IsFinite())
			}
		})
	}
}

func TestFeatureLayers_ConsumeConditioning(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV1, Size: 4, NumFreq: 2},
	}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	out, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(3)), false))
	require.NoError(t, err)
	assert.Equal(t, []feature.Key{feature.Hidden, feature.Speaker}, out.Keys())
}

func TestConcat_AppendsTriplet(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(), layers.ReshapeSpec{Op: layers.ConcatWavPitchTauVUV},
	}, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	in := batch(t, rand.New(rand.NewSource(4)), false)
	f0, _ := in.Tensor(feature.F0)
	tau, _ := in.Tensor(feature.Tau)
	out, err := stack.Forward(nil, in)
	require.NoError(t, err)
	h, err := out.Hidden()
	require.NoError(t, err)

	assert.InDelta(t, signal.NormLogF0Value(f0.At(1, 2, 3)), h.Tensor.At(1, 2, 3, winLen), 1e-12)
	assert.InDelta(t, tau.At(1, 2, 3), h.Tensor.At(1, 2, 3, winLen+1), 1e-12)
	assert.Equal(t, 1.0, h.Tensor.At(1, 2, 3, winLen+2))
}

func TestSinenet_PitchRepresentationsAgree(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV1, Size: 8, NumFreq: 4},
	}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	stack.SetTraining(false)

	byHz, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(6)), false))
	require.NoError(t, err)
	byNLF, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(6)), true))
	require.NoError(t, err)

	a, _ := byHz.Hidden()
	b, _ := byNLF.Hidden()
	for i, v := range a.Tensor.Data() {
		require.InDelta(t, v, b.Tensor.Data()[i], 1e-9)
	}
}

func TestSinenet_MissingPitch(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV1, Size: 8, NumFreq: 4},
	}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	in := batch(t, rand.New(rand.NewSource(6)), false)
	in.Delete(feature.F0)
	_, err = stack.Forward(nil, in)
	assert.ErrorIs(t, err, signal.ErrNoPitch)

	in = batch(t, rand.New(rand.NewSource(6)), false)
	in.Delete(feature.Tau)
	_, err = stack.Forward(nil, in)
	assert.ErrorIs(t, err, feature.ErrMissingKey)
}

func TestBuild_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	st := feature.MustLayout("ST", 2, 1600)
	sbmt := feature.MustLayout("SBMT", 2, 4, 4, 400)
	sbd := feature.MustLayout("SBD", 2, 4, 64)

	tests := []struct {
		name string
		spec layers.Spec
		prev feature.Layout
		want error
	}{
		{"fc on windows", layers.FCSpec{Size: 4}, sbmt, layers.ErrMissingAxis},
		{"fc zero size", layers.FCSpec{Size: 0}, sbd, layers.ErrInvalidSpec},
		{"sinenet on hidden", layers.SinenetSpec{Size: 4, NumFreq: 2}, sbd, layers.ErrMissingAxis},
		{"sinenet no frequencies", layers.SinenetSpec{Size: 4, NumFreq: 0}, sbmt, sinenet.ErrNoFrequencies},
		{"sinenet v2 no dnn", layers.SinenetSpec{Variant: layers.SinenetV2, Size: 4, NumFreq: 2}, sbmt, layers.ErrInvalidSpec},
		{"sinenet bad variant", layers.SinenetSpec{Variant: 9, Size: 4, NumFreq: 2}, sbmt, layers.ErrInvalidSpec},
		{"dw3 on wav", layers.DW3Spec{Size: 4}, st, layers.ErrMissingAxis},
		{"windows on windows", toWindows(), sbmt, layers.ErrLayout},
		{"window too long", layers.ReshapeSpec{Op: layers.WavToWindows, Windows: [2]layers.Window{{2000, 1}, {400, 80}}}, st, layers.ErrInvalidSpec},
		{"zero shift", layers.ReshapeSpec{Op: layers.WavToWindows, Windows: [2]layers.Window{{640, 0}, {400, 80}}}, st, layers.ErrInvalidSpec},
		{"flatten windows", layers.ReshapeSpec{Op: layers.FlattenWindows}, sbmt, layers.ErrMissingAxis},
		{"concat on hidden", layers.ReshapeSpec{Op: layers.ConcatWavPitchTauVUV}, sbd, layers.ErrMissingAxis},
		{"unknown reshape", layers.ReshapeSpec{Op: 42}, st, layers.ErrInvalidSpec},
		{"dropout on windows", layers.ReshapeSpec{Op: layers.WavToWindows, Windows: testWindows, Dropout: 0.5}, st, layers.ErrInvalidSpec},
		{"dropout one", layers.FCSpec{Size: 4, Dropout: 1}, sbd, layers.ErrInvalidSpec},
		{"pointer spec", &layers.FCSpec{Size: 4}, sbd, layers.ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := layers.Build("layer1", tt.spec, tt.prev, rng)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewStack_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	_, err := layers.NewStack(nil, rng)
	assert.ErrorIs(t, err, layers.ErrEmptyStack)

	_, err = layers.NewStack([]layers.Spec{toWindows()}, rng)
	assert.ErrorIs(t, err, layers.ErrEmptyStack)

	_, err = layers.NewStack([]layers.Spec{wavInput(), wavInput()}, rng)
	assert.ErrorIs(t, err, layers.ErrInvalidSpec)
}

func TestInput_RejectsWrongLayout(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		layers.InputSpec{Key: feature.Wav, Layout: feature.MustLayout("ST", 2, 800)},
	}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	_, err = stack.Forward(nil, batch(t, rand.New(rand.NewSource(9)), false))
	assert.ErrorIs(t, err, layers.ErrLayout)

	_, err = stack.Forward(nil, feature.NewDict())
	assert.ErrorIs(t, err, feature.ErrMissingKey)
}

func TestDropout_TrainingOnly(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.DW3Spec{Size: 32, Dropout: 0.5},
	}, rand.New(rand.NewSource(10)))
	require.NoError(t, err)
	assert.Equal(t, 0.5, layers.DropoutP(stack.Layers()[2]))
	assert.Equal(t, 0.0, layers.DropoutP(stack.Layers()[1]))

	countZeros := func() int {
		out, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(11)), false))
		require.NoError(t, err)
		h, _ := out.Hidden()
		n := 0
		for _, v := range h.Tensor.Data() {
			if v == 0 {
				n++
			}
		}
		return n
	}
	assert.Positive(t, countZeros())
	stack.SetTraining(false)
	assert.Zero(t, countZeros())
}

func TestStack_Gradients(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV2, Size: 6, DNNSize: 4, NumFreq: 4, BatchNorm: true},
		layers.ReshapeSpec{Op: layers.FlattenWindows},
		layers.FCSpec{Size: 3, Activation: nn.LeakyReLU{Slope: nn.DefaultLeakySlope}},
	}, rand.New(rand.NewSource(12)))
	require.NoError(t, err)

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	out, err := stack.Forward(tape, batch(t, rand.New(rand.NewSource(13)), false))
	require.NoError(t, err)
	h, err := out.Hidden()
	require.NoError(t, err)

	grads := tape.Backward(h.Tensor, tensor.Ones(h.Tensor.Shape()))
	for _, p := range nn.Trainable(stack) {
		g, ok := grads[p.Tensor()]
		require.True(t, ok, "no gradient for %s", p.Name())
		assert.True(t, g.IsFinite(), p.Name())
		assert.True(t, g.Shape().Equal(p.Tensor().Shape()), p.Name())
	}
}

func TestStack_Deterministic(t *testing.T) {
	specs := []layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV1, Size: 8, NumFreq: 4, Dropout: 0.3},
	}
	run := func() []float64 {
		stack, err := layers.NewStack(specs, rand.New(rand.NewSource(14)))
		require.NoError(t, err)
		out, err := stack.Forward(nil, batch(t, rand.New(rand.NewSource(15)), false))
		require.NoError(t, err)
		h, _ := out.Hidden()
		return h.Tensor.Data()
	}
	assert.Equal(t, run(), run())
}

func TestNames(t *testing.T) {
	stack, err := layers.NewStack([]layers.Spec{
		wavInput(), toWindows(),
		layers.SinenetSpec{Variant: layers.SinenetV1Residual, Size: 4, NumFreq: 2, BatchNorm: true},
	}, rand.New(rand.NewSource(16)))
	require.NoError(t, err)

	ls := stack.Layers()
	assert.Equal(t, "layer0/Input", ls[0].Name())
	assert.Equal(t, "layer1/wav_to_windows", ls[1].Name())
	assert.Equal(t, "layer2/Sinenet_V1_Residual", ls[2].Name())

	var names []string
	for _, p := range stack.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		"layer2.residual.weight", "layer2.residual.bias",
		"layer2.cond.weight", "layer2.cond.bias",
		"layer2.bn.gamma", "layer2.bn.beta", "layer2.bn.running_mean", "layer2.bn.running_var",
	}, names)
}
