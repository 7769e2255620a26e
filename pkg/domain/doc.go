// Package domain contains the core types shared across the audit pipeline:
// requirement catalog entries, evidence chunks, assessments, audit runs and
// the error taxonomy. It has no dependencies on other clausewise packages.
package domain
