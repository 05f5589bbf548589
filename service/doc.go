// Package service wires a graph storage process together: configuration,
// the link content backend, metrics, the store directory lock, and the
// segment dump that is loaded on start and saved on close.
//
// It is intended for embedding a graph store into other programs without
// shelling out to the CLI.
package service
