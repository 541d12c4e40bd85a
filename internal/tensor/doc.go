// Package tensor provides the dense float64 arrays used throughout sinenet.
//
// Tensors are always contiguous and row-major. Axis-reordering operations
// return fresh copies, so a tensor handed to a layer never aliases another
// tensor's strided storage. Random constructors take an explicit *rand.Rand
// so that training runs are reproducible from a single seed.
package tensor
