// Package datapoint assembles records into canonical index entries and
// handles their line-delimited serialization.
//
// Assemble validates and combines the pieces produced upstream (identifier,
// dense vector, sparse vector, projected attributes) into one entry; Parse
// is the reverse operation and tolerates the optional-field gaps and field
// aliases found in historical data.
package datapoint
