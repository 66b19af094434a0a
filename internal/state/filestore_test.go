package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupFileStore 创建基于临时目录的文件状态存储
func setupFileStore(t *testing.T) (*FileStore, string) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	return store, dir
}

// TestNewFileStore 测试存储初始化
func TestNewFileStore(t *testing.T) {
	t.Run("missing files are empty sets", func(t *testing.T) {
		store, _ := setupFileStore(t)
		responded, spam := store.Counts()
		assert.Equal(t, 0, responded)
		assert.Equal(t, 0, spam)
	})

	t.Run("creates data directory if absent", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "state")
		_, err := NewFileStore(dir, zap.NewNop())
		require.NoError(t, err)

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, respondedFileName), []byte("{not json"), 0644))

		_, err := NewFileStore(dir, zap.NewNop())
		assert.Error(t, err)
	})
}

// TestMarkResponded 测试已回复标记的写入与查询
func TestMarkResponded(t *testing.T) {
	store, dir := setupFileStore(t)

	require.NoError(t, store.MarkResponded("msg-1"))
	assert.True(t, store.IsResponded("msg-1"))
	assert.False(t, store.IsResponded("msg-2"))
	assert.False(t, store.IsResponded(""))

	// 空 ID 忽略
	require.NoError(t, store.MarkResponded(""))
	responded, _ := store.Counts()
	assert.Equal(t, 1, responded)

	// 落盘格式是 JSON 字符串数组
	data, err := os.ReadFile(filepath.Join(dir, respondedFileName))
	require.NoError(t, err)
	var entries []string
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Equal(t, []string{"msg-1"}, entries)
}

// TestMarkSpam 测试垃圾标记同时写入邮件与会话条目
func TestMarkSpam(t *testing.T) {
	store, _ := setupFileStore(t)

	require.NoError(t, store.MarkSpam("msg-9", "thread-7"))

	assert.True(t, store.IsSpam("msg-9"))
	assert.True(t, store.IsSpam("thread:thread-7"))
	assert.False(t, store.IsSpam("msg-9-other"))

	t.Run("without thread id", func(t *testing.T) {
		require.NoError(t, store.MarkSpam("msg-10", ""))
		assert.True(t, store.IsSpam("msg-10"))

		_, spam := store.Counts()
		assert.Equal(t, 3, spam)
	})
}

// TestReload 测试重启后状态完整恢复
func TestReload(t *testing.T) {
	store, dir := setupFileStore(t)

	require.NoError(t, store.MarkResponded("msg-a"))
	require.NoError(t, store.MarkResponded("msg-b"))
	require.NoError(t, store.MarkSpam("msg-c", "thread-1"))

	reloaded, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, reloaded.IsResponded("msg-a"))
	assert.True(t, reloaded.IsResponded("msg-b"))
	assert.True(t, reloaded.IsSpam("msg-c"))
	assert.True(t, reloaded.IsSpam("thread:thread-1"))

	responded, spam := reloaded.Counts()
	assert.Equal(t, 2, responded)
	assert.Equal(t, 2, spam)
}

// TestAtomicRewrite 测试重写后没有残留的临时文件
func TestAtomicRewrite(t *testing.T) {
	store, dir := setupFileStore(t)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, store.MarkResponded(id))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
