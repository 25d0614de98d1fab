// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controldef loads compliance control definitions from disk
// and refreshes the control registry in the audit store.
//
// A definitions directory holds one control per file. YAML (.yml,
// .yaml) and JSONC (.json, .jsonc: JSON with comments and trailing
// commas) are both accepted:
//
//	control_id: CC6.1
//	name: Logical Access Controls
//	risk: Unauthorized access to production systems
//	expected_state:
//	  mfa_required_for_privileged_users: true
//	  admin_access_restricted: true
//	evidence_sources:
//	  - cloud_iam
//	  - system: github
//	    branches: [main]
//	severity: HIGH
//	check_frequency: daily
//
// Files are processed in sorted name order, which fixes the registry
// order a run iterates in. Severity is case-insensitive. Each evidence
// source is either a bare system name or a mapping with a "system" key;
// the remaining keys of a mapping become collector options.
//
// Validation is all-or-nothing: [Load] reports every invalid file and
// returns no controls if any file is invalid, so a run never proceeds
// with a partial registry.
package controldef
