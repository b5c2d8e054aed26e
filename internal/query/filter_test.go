package query

import "testing"

func mustMatch(t *testing.T, f Filter, doc string, want bool) {
	t.Helper()
	got, err := f.Match([]byte(doc))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got != want {
		t.Errorf("filter %+v against %s: expected %v, got %v", f, doc, want, got)
	}
}

func TestFilterLeafOperators(t *testing.T) {
	doc := `{"status":"active","age":30,"tags":["a","b"],"nickname":null}`

	t.Run("Eq matches equal values", func(t *testing.T) {
		mustMatch(t, Eq("status", "active"), doc, true)
		mustMatch(t, Eq("status", "inactive"), doc, false)
	})

	t.Run("Ne matches unequal values", func(t *testing.T) {
		mustMatch(t, Ne("status", "inactive"), doc, true)
	})

	t.Run("numeric comparisons coerce JSON numbers", func(t *testing.T) {
		mustMatch(t, Gt("age", 20), doc, true)
		mustMatch(t, Gte("age", 30), doc, true)
		mustMatch(t, Lt("age", 30), doc, false)
		mustMatch(t, Lte("age", 30), doc, true)
	})

	t.Run("In matches against a set", func(t *testing.T) {
		mustMatch(t, In("status", []any{"active", "pending"}), doc, true)
		mustMatch(t, In("status", []any{"pending"}), doc, false)
	})

	t.Run("Like supports prefix, suffix, and mid wildcards", func(t *testing.T) {
		mustMatch(t, Like("status", "act%"), doc, true)
		mustMatch(t, Like("status", "%ive"), doc, true)
		mustMatch(t, Like("status", "a%e"), doc, true)
		mustMatch(t, Like("status", "x%"), doc, false)
	})

	t.Run("Exists reports field presence regardless of value", func(t *testing.T) {
		mustMatch(t, Exists("nickname"), doc, true)
		mustMatch(t, Exists("missing"), doc, false)
	})

	t.Run("IsNull requires presence with a null value", func(t *testing.T) {
		mustMatch(t, IsNull("nickname"), doc, true)
		mustMatch(t, IsNull("status"), doc, false)
		mustMatch(t, IsNull("missing"), doc, false)
	})

	t.Run("a missing field never matches value-based conditions", func(t *testing.T) {
		mustMatch(t, Eq("missing", "x"), doc, false)
	})
}

func TestFilterCombinators(t *testing.T) {
	doc := `{"status":"active","age":30}`

	t.Run("And requires every child to match", func(t *testing.T) {
		mustMatch(t, And(Eq("status", "active"), Gt("age", 20)), doc, true)
		mustMatch(t, And(Eq("status", "active"), Gt("age", 40)), doc, false)
	})

	t.Run("Or requires at least one child to match", func(t *testing.T) {
		mustMatch(t, Or(Eq("status", "inactive"), Gt("age", 20)), doc, true)
		mustMatch(t, Or(Eq("status", "inactive"), Gt("age", 40)), doc, false)
	})

	t.Run("Not negates its single child", func(t *testing.T) {
		mustMatch(t, Not(Eq("status", "inactive")), doc, true)
		mustMatch(t, Not(Eq("status", "active")), doc, false)
	})

	t.Run("nested combinators compose", func(t *testing.T) {
		f := And(Eq("status", "active"), Or(Gt("age", 40), Lt("age", 40)))
		mustMatch(t, f, doc, true)
	})
}

func TestFilterAgainstNonObjectValue(t *testing.T) {
	f := Eq("status", "active")
	got, err := f.Match([]byte(`"just a string"`))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got {
		t.Errorf("expected a non-object value to never match a field condition")
	}
}
