// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// These benchmarks cover the host-side hot paths of a build:
//   - CUE recipe parsing and schema validation
//   - Manifest and lock resolution into a dependency set
//   - Dockerfile rendering and plan construction
//   - Launch environment building
//
// To generate a PGO profile, run:
//
//	go test -run=^$ -bench=. -cpuprofile=default.pgo ./internal/benchmark
package benchmark
