// Package store provides in-memory implementations of the persistence
// contracts (turn records, playbooks, evolution logs). The sqlite subpackage
// offers durable turn and playbook storage behind the same interfaces.
package store
