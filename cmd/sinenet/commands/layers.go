package commands

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/nn"
)

func newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Print the layer stack and its shape chain",
		Long: `Build the layer stack of the experiment and print every layer with the
layout of the feature it writes and its number of trainable values.

Building the stack validates the whole shape chain, so this is also a quick
check of an experiment file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment()
			if err != nil {
				return err
			}
			specs, err := layers.ParseSpecs(exp.Layers)
			if err != nil {
				return err
			}
			stack, err := layers.NewStack(specs, rand.New(rand.NewSource(exp.Seed)))
			if err != nil {
				return err
			}

			t := newTable("#", "layer", "output", "params")
			total := 0
			for i, l := range stack.Layers() {
				n := countValues(l)
				total += n
				t.Row(strconv.Itoa(i), l.Name(), l.Output().String(), strconv.Itoa(n))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(exp.Name))
			fmt.Fprintln(out, t.Render())
			fmt.Fprintln(out, field("trainable values", strconv.Itoa(total)))
			return nil
		},
	}
}

func countValues(m nn.Module) int {
	n := 0
	for _, p := range nn.Trainable(m) {
		n += p.Tensor().NumElements()
	}
	return n
}
