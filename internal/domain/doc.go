// Package domain holds the persisted records of the audit pipeline: websites,
// audits, issues, drafts, changes and activity events, plus the enumerations
// that drive their lifecycles.
package domain
