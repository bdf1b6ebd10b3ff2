package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore 基于本地文件系统的对象存储实现
// 对象位置被映射为 root 之下的相对路径
type FilesystemStore struct {
	root string
}

// NewFilesystemStore 创建文件系统对象存储
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// path 将对象位置转换为文件路径并拒绝路径逃逸
func (s *FilesystemStore) path(location string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(location))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object location: %q", location)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Put 写入对象内容
func (s *FilesystemStore) Put(ctx context.Context, location string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	// 先写临时文件再重命名,避免留下写了一半的对象
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// Get 读取对象内容
func (s *FilesystemStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(location)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return content, nil
}

// Copy 复制对象
func (s *FilesystemStore) Copy(ctx context.Context, src, dst string) error {
	content, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	return s.Put(ctx, dst, content)
}

// Checksum 计算对象的 SHA-256 摘要
func (s *FilesystemStore) Checksum(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(location)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, location)
	}
	if err != nil {
		return "", fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Delete 删除对象,不存在时视为成功
func (s *FilesystemStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists 判断对象是否存在
func (s *FilesystemStore) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(location)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}
