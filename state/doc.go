// Package state persists the interfaces.PolicyState record of a working
// directory, either as a JSON file or in a Vault KV v2 secret.
package state
