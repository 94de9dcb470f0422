// Package models defines domain models for Guardrail.
package models

import "time"

// Severity represents the severity level of a test or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// ValidSeverity reports whether s is a known severity value.
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ResultStatus is the outcome of one compliance test run.
type ResultStatus string

const (
	ResultStatusPass  ResultStatus = "pass"
	ResultStatusFail  ResultStatus = "fail"
	ResultStatusError ResultStatus = "error"
)

// ValidResultStatus reports whether s is a known result status.
func ValidResultStatus(s string) bool {
	switch ResultStatus(s) {
	case ResultStatusPass, ResultStatusFail, ResultStatusError:
		return true
	}
	return false
}

// TestResult is one completed compliance-test outcome as produced by the
// test execution pipeline. Guardrail consumes it; it never mutates it.
type TestResult struct {
	TestID    string         `json:"test_id"`
	ControlID string         `json:"control_id"`
	Status    ResultStatus   `json:"status"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	TestedAt  time.Time      `json:"tested_at"`
}
