// Package infra holds the storage backends behind the domain persistence and blob
// contracts.
package infra
