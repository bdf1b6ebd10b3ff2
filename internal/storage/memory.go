package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// MemoryStore 内存对象存储
// 用于测试,支持按操作注入故障和复制时篡改内容(模拟传输损坏)
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// 故障注入: 非 nil 时对应操作直接返回该错误
	PutErr    error
	CopyErr   error
	DeleteErr error

	// CorruptNextCopies 大于 0 时,接下来 N 次 Copy 写入被篡改的内容
	CorruptNextCopies int

	// 操作计数,测试断言用
	CopyCalls   int
	DeleteCalls int
}

// NewMemoryStore 创建内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put 写入对象内容
func (s *MemoryStore) Put(ctx context.Context, location string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	s.objects[location] = buf
	return nil
}

// Get 读取对象内容
func (s *MemoryStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.objects[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, location)
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	return buf, nil
}

// Copy 复制对象
func (s *MemoryStore) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CopyCalls++
	if s.CopyErr != nil {
		return s.CopyErr
	}
	content, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	if s.CorruptNextCopies > 0 {
		s.CorruptNextCopies--
		buf = append(buf, byte('?'))
	}
	s.objects[dst] = buf
	return nil
}

// Checksum 计算对象的 SHA-256 摘要
func (s *MemoryStore) Checksum(ctx context.Context, location string) (string, error) {
	content, err := s.Get(ctx, location)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

// Delete 删除对象,不存在时视为成功
func (s *MemoryStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, location)
	return nil
}

// Exists 判断对象是否存在
func (s *MemoryStore) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[location]
	return ok, nil
}

// Len 返回对象数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
