package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// BlobStore 路径寻址的对象存储接口
// 所有方法在相同参数下重试必须幂等,且并发安全
type BlobStore interface {
	// Put 在指定位置写入对象内容,已存在时覆盖
	Put(ctx context.Context, location string, content []byte) error
	// Get 读取对象内容
	Get(ctx context.Context, location string) ([]byte, error)
	// Copy 将 src 处的对象复制到 dst,dst 已存在时覆盖
	Copy(ctx context.Context, src, dst string) error
	// Checksum 计算对象内容的 SHA-256 十六进制摘要
	Checksum(ctx context.Context, location string) (string, error)
	// Delete 删除对象,对象不存在时返回 nil (幂等)
	Delete(ctx context.Context, location string) error
	// Exists 判断对象是否存在
	Exists(ctx context.Context, location string) (bool, error)
}
