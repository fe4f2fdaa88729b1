package main

import "github.com/gocarina/gocsv"

// gocsvMarshal renders rows as CSV text, the same struct-tag-driven
// marshaling the teacher's disks package uses for its geometry tables.
func gocsvMarshal(rows []*dirRow) (string, error) {
	return gocsv.MarshalString(rows)
}
