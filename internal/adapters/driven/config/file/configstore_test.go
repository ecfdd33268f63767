package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "deep", "path")

	store, err := NewConfigStore(nestedPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(nestedPath, ConfigFile), store.Path())

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, ConfigFile), []byte("this is not valid TOML {{{[["), 0600)
	require.NoError(t, err)

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_ReadsNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[embedding]
provider = "ollama"
model = "paraphrase-multilingual"

[chunker]
size = 1500
overlap = 200

[answer]
min_score = 0.4
web_mode = "always"

[web]
weather = false
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFile), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", store.GetString("embedding.provider"))
	assert.Equal(t, "paraphrase-multilingual", store.GetString("embedding.model"))
	assert.Equal(t, 1500, store.GetInt("chunker.size"))
	assert.Equal(t, 200, store.GetInt("chunker.overlap"))
	assert.InDelta(t, 0.4, store.GetFloat("answer.min_score"), 1e-9)
	assert.Equal(t, "always", store.GetString("answer.web_mode"))
	assert.False(t, store.GetBool("web.weather"))

	_, ok := store.Get("web.weather")
	assert.True(t, ok)
}

func TestConfigStore_WritesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("store.backend", "sqlite"))
	require.NoError(t, store.Set("store.path", "/var/lib/bilgi"))
	require.NoError(t, store.Set("ingest.workers", 4))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[store]")
	assert.Contains(t, string(raw), "[ingest]")
	assert.NotContains(t, string(raw), `"store.backend"`)

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", reloaded.GetString("store.backend"))
	assert.Equal(t, "/var/lib/bilgi", reloaded.GetString("store.path"))
	assert.Equal(t, 4, reloaded.GetInt("ingest.workers"))
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("s", "metin"))
	require.NoError(t, store.Set("i", int64(9999)))
	require.NoError(t, store.Set("f", 3.5))
	require.NoError(t, store.Set("b", true))
	require.NoError(t, store.Set("list", []string{"company_documents", "learned_knowledge"}))

	assert.Equal(t, "metin", store.GetString("s"))
	assert.Equal(t, "9999", store.GetString("i"))
	assert.Equal(t, 9999, store.GetInt("i"))
	assert.InDelta(t, 9999.0, store.GetFloat("i"), 1e-9)
	assert.InDelta(t, 3.5, store.GetFloat("f"), 1e-9)
	assert.True(t, store.GetBool("b"))
	assert.Equal(t, []string{"company_documents", "learned_knowledge"}, store.GetStringSlice("list"))

	assert.Equal(t, "", store.GetString("missing"))
	assert.Zero(t, store.GetInt("missing"))
	assert.Zero(t, store.GetInt("s"))
	assert.False(t, store.GetBool("missing"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store1.Set("llm.model", "llama3.2"))
	require.NoError(t, store1.Set("answer.top_k", 5))
	require.NoError(t, store1.Set("web.weather", true))
	require.NoError(t, store1.Set("answer.min_score", 0.35))

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "llama3.2", store2.GetString("llm.model"))
	assert.Equal(t, 5, store2.GetInt("answer.top_k"))
	assert.True(t, store2.GetBool("web.weather"))
	assert.InDelta(t, 0.35, store2.GetFloat("answer.min_score"), 1e-9)
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFile), []byte("# yalnızca yorum\n"), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	val, ok := store.Get("any_key")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_Save_WriteFileError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	// Replace the file with a directory so the write fails.
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("another", "value"))
}

func TestConfigStore_Load_InvalidTOML(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("valid", "data"))

	require.NoError(t, os.WriteFile(store.Path(), []byte("invalid toml syntax ][}{"), 0600))

	assert.Error(t, store.Load())
}

func TestConfigStore_SetWithUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("channel", make(chan int)))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "worker.key" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetInt(key)
			_ = store.GetString(key)
			_ = store.GetFloat(key)
		}(i)
	}
	wg.Wait()
}

func TestNestMap(t *testing.T) {
	nested := nestMap(map[string]any{
		"a.b.c": 1,
		"a.d":   "x",
		"top":   true,
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": 1},
			"d": "x",
		},
		"top": true,
	}, nested)
	assert.Equal(t, map[string]any{"a.b.c": 1, "a.d": "x", "top": true}, flattenMap(nested, ""))
}
