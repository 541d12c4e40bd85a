// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/sinenet/train"
)

func TestPolicyScenario(t *testing.T) {
	p := train.NewPolicy(0, 2, 1)
	var got []train.Decision
	for i, loss := range []float64{1.0, 0.9, 0.95, 0.96, 0.97} {
		got = append(got, p.Observe(i+1, loss))
	}
	assert.Equal(t, []train.Decision{train.Improved, train.Improved, train.Worse, train.Worse, train.Decay}, got)
	assert.Equal(t, train.Decaying, p.Phase())
	assert.Equal(t, 2, p.State().BestEpoch)
}
