// Package cli implements the orion command tree.
//
// Every command that touches devices builds a fleet.Service from the loaded
// configuration, does its work, and closes the service before returning.
// Commands write through cmd.OutOrStdout so they can be exercised in tests
// with a swapped service factory.
package cli
