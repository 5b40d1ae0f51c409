// Package visibility builds the branch visibility predicate.
//
// A row is visible to branch b when it is not soft-deleted, belongs to b or
// to master, and has not been shadowed: no row in the live table carries
// from_id = row.id with branch = b. The shadow check is keyed on the requested
// branch, so an override stays visible while hiding its origin. The check also
// runs for master, where a master-branch override hides its origin too.
package visibility

import (
	"domainreader/internal/reader/filter"
)

// DefaultBranch is the baseline branch every viewer sees.
const DefaultBranch = "master"

// Predicate is a WHERE clause with its arguments in marker order.
type Predicate struct {
	SQL  string
	Args []any
}

// Build returns the visibility predicate for branch against liveTable, which
// must already be quoted. The two branch markers are $1 and $2; a non-nil
// filter fragment is AND-combined with markers numbered from $3.
func Build(liveTable, branch string, frag *filter.Fragment) Predicate {
	if branch == "" {
		branch = DefaultBranch
	}

	sql := "NOT (deleted IS TRUE)" +
		" AND (branch = $1 OR branch = '" + DefaultBranch + "')" +
		" AND id NOT IN (SELECT from_id FROM " + liveTable +
		" WHERE from_id IS NOT NULL AND branch = $2)"
	args := []any{branch, branch}

	if frag != nil {
		sql += " AND (" + frag.SQL(len(args)+1) + ")"
		args = append(args, frag.Args()...)
	}
	return Predicate{SQL: sql, Args: args}
}
