package visibility

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainreader/internal/reader/filter"
)

const ordersTable = `"entities"."orders"`

func TestBuild_VisibilityOnly(t *testing.T) {
	p := Build(ordersTable, "promoA", nil)

	goldie.New(t).Assert(t, "visibility_only", []byte(p.SQL))
	assert.Equal(t, []any{"promoA", "promoA"}, p.Args)
}

func TestBuild_DefaultsToMaster(t *testing.T) {
	p := Build(ordersTable, "", nil)
	assert.Equal(t, []any{"master", "master"}, p.Args)
}

func TestBuild_MasterStillChecksShadowing(t *testing.T) {
	p := Build(ordersTable, "master", nil)
	assert.Contains(t, p.SQL, "id NOT IN (SELECT from_id FROM "+ordersTable)
}

func TestBuild_WithFilter(t *testing.T) {
	frag, err := filter.NewCompiler(filter.RejectUnbound).Compile(
		"customer_name = :customer AND total > :min",
		map[string]any{"customer": "acme", "min": 100},
	)
	require.NoError(t, err)

	p := Build(ordersTable, "promoA", frag)

	goldie.New(t).Assert(t, "visibility_with_filter", []byte(p.SQL))
	assert.Equal(t, []any{"promoA", "promoA", "acme", 100}, p.Args, "branch arguments precede filter arguments")
}
