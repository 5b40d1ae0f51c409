package model

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainreader/internal/schema"
)

func orderFields() []schema.Field {
	return []schema.Field{
		{Alias: "orderId", FieldType: "integer", ColumnName: "id"},
		{Alias: "customer", FieldType: "string", ColumnName: "customer_name"},
		{Alias: "createdAt", FieldType: "datetime", ColumnName: "created_at"},
	}
}

func TestBind_TableVariants(t *testing.T) {
	b := NewBinder("entities", "_history")

	live := b.Bind("orders", orderFields(), Live)
	assert.Equal(t, Live, live.Variant())
	assert.Equal(t, "orders", live.Table())
	assert.Equal(t, `"entities"."orders"`, live.QualifiedTable())
	assert.Equal(t, `"entities"."orders"`, live.LiveTable())

	hist := b.Bind("orders", orderFields(), Historical)
	assert.Equal(t, "orders_history", hist.Table())
	assert.Equal(t, `"entities"."orders_history"`, hist.QualifiedTable())
	assert.Equal(t, `"entities"."orders"`, hist.LiveTable(), "overrides are always looked up in the live table")

	back := hist.WithVariant(Live)
	assert.Equal(t, "orders", back.Table())
	assert.Equal(t, Historical, hist.Variant(), "rebinding leaves the original untouched")
	assert.Equal(t, hist.Aliases(), back.Aliases())
}

func TestBind_WithoutSchema(t *testing.T) {
	m := NewBinder("", "_history").Bind("orders", orderFields(), Live)
	assert.Equal(t, `"orders"`, m.QualifiedTable())
}

func TestBind_CopiesFields(t *testing.T) {
	fields := orderFields()
	m := NewBinder("entities", "_history").Bind("orders", fields, Live)
	fields[0].Alias = "mutated"
	assert.Equal(t, "orderId", m.Aliases()[0])
}

func TestSelectQuery(t *testing.T) {
	g := goldie.New(t)
	m := NewBinder("entities", "_history").Bind("orders", orderFields(), Live)

	t.Run("unwindowed", func(t *testing.T) {
		q := m.SelectQuery("branch = $1", []any{"master"}, nil)
		g.Assert(t, "select_unwindowed", []byte(q.SQL))
		assert.Equal(t, []any{"master"}, q.Args)
	})

	t.Run("windowed", func(t *testing.T) {
		q := m.SelectQuery("branch = $1", []any{"master"}, &Window{Limit: 10, Offset: 10})
		g.Assert(t, "select_windowed", []byte(q.SQL))
		assert.Equal(t, []any{"master", 10, 10}, q.Args)
	})

	t.Run("historical", func(t *testing.T) {
		q := m.WithVariant(Historical).SelectQuery("", nil, nil)
		g.Assert(t, "select_historical", []byte(q.SQL))
		assert.Empty(t, q.Args)
	})

	t.Run("historical with snapshot order", func(t *testing.T) {
		snap := NewBinder("entities", "_history").WithSnapshotOrder("snapshot_id").Bind("orders", orderFields(), Historical)
		q := snap.SelectQuery("", nil, &Window{Limit: 10, Offset: 0})
		g.Assert(t, "select_historical_snapshot", []byte(q.SQL))

		live := snap.WithVariant(Live).SelectQuery("", nil, nil)
		assert.NotContains(t, live.SQL, "snapshot_id", "live rows are unique per id")
	})

	t.Run("count", func(t *testing.T) {
		q := m.CountQuery("branch = $1", []any{"master"}, &Window{Limit: 20, Offset: 0})
		g.Assert(t, "count_windowed", []byte(q.SQL))
		assert.Equal(t, []any{"master", 20, 0}, q.Args)
	})
}

func TestSelectQuery_QuotesIdentifiers(t *testing.T) {
	fields := []schema.Field{{Alias: `we"ird`, ColumnName: `col"umn`}}
	q := NewBinder("entities", "_history").Bind(`ord"ers`, fields, Live).SelectQuery("", nil, nil)
	assert.Equal(t, `SELECT "col""umn" AS "we""ird" FROM "entities"."ord""ers" ORDER BY "entities"."ord""ers".id`, q.SQL)
}

func TestNewRow(t *testing.T) {
	m := NewBinder("entities", "_history").Bind("orders", orderFields(), Live)

	t.Run("pairs values with aliases", func(t *testing.T) {
		row, err := m.NewRow([]any{int64(42), []byte("acme"), nil})
		require.NoError(t, err)

		v, ok := row.Get("orderId")
		assert.True(t, ok)
		assert.Equal(t, int64(42), v)
		v, ok = row.Get("customer")
		assert.True(t, ok)
		assert.Equal(t, "acme", v)
		v, ok = row.Get("createdAt")
		assert.True(t, ok)
		assert.Nil(t, v)
		_, ok = row.Get("customer_name")
		assert.False(t, ok, "rows are keyed by alias, not column")
	})

	t.Run("value count mismatch", func(t *testing.T) {
		_, err := m.NewRow([]any{int64(1)})
		assert.Error(t, err)
	})
}

func TestBindingError(t *testing.T) {
	cause := assert.AnError
	err := &BindingError{Table: "orders", Column: "customer_name", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "orders.customer_name")
}
