// Package project derives index-entry attributes from raw records.
//
// A Projector reads a record through configured field lists and produces the
// embedding input text, display metadata, categorical restricts, and numeric
// restricts for one entry. Timestamp fields are coerced to epoch seconds so
// they can serve as numeric range filters.
package project
