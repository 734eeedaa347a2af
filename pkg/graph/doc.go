// Package graph defines the phantom scene graph: an immutable DAG of
// primitives, booleans, transforms and grid samplers produced by the phantom
// DSL and turned into voxel grids through a geometry kernel.
package graph
