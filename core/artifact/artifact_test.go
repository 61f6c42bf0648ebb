package artifact_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer-project/lucius/core/artifact"
)

func TestFromBytes(t *testing.T) {
	a := artifact.FromBytes([]byte("%PDF"))
	assert.True(t, a.HasText)
	assert.Equal(t, "%PDF", a.Text)
	assert.Equal(t, "4", a.Meta["size"])

	bin := artifact.FromBytes([]byte{0xff, 0xfe, 0x00})
	assert.False(t, bin.HasText)
	assert.Empty(t, bin.Text)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x4D, 0x5A, 0x00, 0x00}, 0o600))

	a, err := artifact.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x4D, 0x5A, 0x00, 0x00}, a.Bytes)
	assert.Equal(t, "sample.bin", a.Meta["filename"])

	_, err = artifact.FromFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyContextEncodesAsEmptyCollections(t *testing.T) {
	ctx := artifact.NewExecutionContext()
	assert.True(t, ctx.Empty())

	got, err := json.Marshal(ctx)
	require.NoError(t, err)

	want := `{"tags":[],"emits":[],"deferred":[],"scores":{}}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("encoding mismatch (-want +got):\n%s", diff)
	}

	ctx.Scores["risk"] = 1
	assert.False(t, ctx.Empty())
}
