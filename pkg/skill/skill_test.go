package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResolverReadsSkillDocument(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "skills", "labs")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	body := []byte(`{"loinc": "4548-4", "priority": "routine"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a1c.json"), body, 0o644))

	params, err := NewFileResolver(root).Resolve("labs/a1c")
	require.NoError(t, err)
	assert.Equal(t, "4548-4", params["loinc"])
	assert.Equal(t, "routine", params["priority"])
}

func TestFileResolverMissingSkill(t *testing.T) {
	_, err := NewFileResolver(t.TempDir()).Resolve("labs/missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "labs/missing")
}

func TestFileResolverRejectsMalformedDocument(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "skills")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0o644))

	_, err := NewFileResolver(root).Resolve("bad")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid parameter document")
}

func TestStaticResolver(t *testing.T) {
	resolver := StaticResolver{"visit": {"modality": "office"}}

	params, err := resolver.Resolve("visit")
	require.NoError(t, err)
	assert.Equal(t, "office", params["modality"])

	_, err = resolver.Resolve("absent")
	assert.Error(t, err)
}

func TestResolverFunc(t *testing.T) {
	var got string

	resolver := ResolverFunc(func(ref string) (map[string]any, error) {
		got = ref

		return map[string]any{"ok": true}, nil
	})

	params, err := resolver.Resolve("anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", got)
	assert.Equal(t, true, params["ok"])
}
