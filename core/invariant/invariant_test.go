package invariant_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer-project/lucius/core/invariant"
)

func catch(t *testing.T, fn func()) (v *invariant.Violation) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		var ok bool
		v, ok = r.(*invariant.Violation)
		require.True(t, ok, "panic value should be *Violation, got %T", r)
	}()
	fn()
	return nil
}

func TestPassingContractsDoNotPanic(t *testing.T) {
	x := 3
	invariant.Precondition(x == 3, "x")
	invariant.Postcondition(x > 0, "x positive")
	invariant.Invariant(true, "always")
	invariant.NotNil(&x, "x")
	invariant.InRange(x, 0, 3, "x")
}

func TestViolationKinds(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		kind string
		msg  string
	}{
		{"precondition", func() { invariant.Precondition(false, "data must not be %s", "empty") }, "PRECONDITION", "data must not be empty"},
		{"postcondition", func() { invariant.Postcondition(false, "result must be sorted") }, "POSTCONDITION", "result must be sorted"},
		{"invariant", func() { invariant.Invariant(false, "scanner must advance") }, "INVARIANT", "scanner must advance"},
		{"range", func() { invariant.InRange(7, 0, 3, "slot") }, "PRECONDITION", "slot must be in range [0, 3], got 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := catch(t, tt.fn)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.msg, v.Message)
			assert.True(t, strings.HasSuffix(v.File, "invariant_test.go"), "violation should point at caller, got %s", v.File)
			assert.Contains(t, v.Error(), tt.kind+" VIOLATION")
		})
	}
}

func TestNotNilTypedNil(t *testing.T) {
	var p *int
	var m map[string]int

	v := catch(t, func() { invariant.NotNil(p, "ptr") })
	assert.Equal(t, "ptr must not be nil", v.Message)

	v = catch(t, func() { invariant.NotNil(m, "map") })
	assert.Equal(t, "map must not be nil", v.Message)

	v = catch(t, func() { invariant.NotNil(nil, "iface") })
	assert.Equal(t, "iface must not be nil", v.Message)
}
