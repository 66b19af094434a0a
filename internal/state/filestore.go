package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// 状态文件名（与历史数据布局保持一致）
const (
	respondedFileName = "responded_emails.json"
	spamFileName      = "spam_emails.json"
)

// FileStore 基于文件系统的状态存储，是默认且权威的后端。
//
// 每个集合是磁盘上的一个 JSON 字符串数组；每次变更整体重写，
// 先写临时文件再原子重命名，避免进程被杀时文件截断。
// 文件缺失视为空集合而非错误。
type FileStore struct {
	mu        sync.RWMutex
	dir       string
	responded map[string]struct{}
	spam      map[string]struct{}
	log       *zap.Logger
}

// NewFileStore 创建文件状态存储并加载既有集合。
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &FileStore{
		dir:       dir,
		responded: make(map[string]struct{}),
		spam:      make(map[string]struct{}),
		log:       log,
	}

	if err := s.loadSet(respondedFileName, s.responded); err != nil {
		return nil, err
	}
	if err := s.loadSet(spamFileName, s.spam); err != nil {
		return nil, err
	}

	log.Info("state store loaded",
		zap.String("dir", dir),
		zap.Int("responded", len(s.responded)),
		zap.Int("spam", len(s.spam)),
	)

	return s, nil
}

// IsResponded 判断邮件是否已回复过。
func (s *FileStore) IsResponded(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.responded[messageID]
	return ok
}

// MarkResponded 标记邮件为已回复并持久化。
func (s *FileStore) MarkResponded(messageID string) error {
	if messageID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.responded[messageID] = struct{}{}

	if err := s.persistSet(respondedFileName, s.responded); err != nil {
		// 持久化失败只记日志，内存集合保持更新
		s.log.Error("failed to persist responded set", zap.Error(err))
		return err
	}
	return nil
}

// IsSpam 判断邮件或会话标记是否已判定为垃圾。
func (s *FileStore) IsSpam(id string) bool {
	if id == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spam[id]
	return ok
}

// MarkSpam 标记邮件（及可选的会话标记）为垃圾并持久化。
func (s *FileStore) MarkSpam(messageID, threadID string) error {
	if messageID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spam[messageID] = struct{}{}
	if threadID != "" {
		s.spam[SpamThreadKey(threadID)] = struct{}{}
	}

	if err := s.persistSet(spamFileName, s.spam); err != nil {
		s.log.Error("failed to persist spam set", zap.Error(err))
		return err
	}
	return nil
}

// Counts 返回两个集合的当前大小。
func (s *FileStore) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responded), len(s.spam)
}

// loadSet 从磁盘加载一个集合，文件不存在时保持为空。
func (s *FileStore) loadSet(name string, into map[string]struct{}) error {
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file %s: %w", name, err)
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse state file %s: %w", name, err)
	}

	for _, e := range entries {
		into[e] = struct{}{}
	}
	return nil
}

// persistSet 整体重写一个集合：写临时文件后原子重命名。
// 调用方必须持有写锁。
func (s *FileStore) persistSet(name string, set map[string]struct{}) error {
	entries := make([]string, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	sort.Strings(entries) // 稳定输出，便于人工检查与 diff

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode state file %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file %s: %w", name, err)
	}
	return nil
}
