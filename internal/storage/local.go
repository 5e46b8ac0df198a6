// Package storage はファイルストレージの抽象化レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound は対象ファイルが存在しないことを表します。
var ErrNotFound = errors.New("file not found")

// Storage はファイルの保存・取得・削除を提供します。
type Storage interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Local はローカルファイルシステムへ保存する実装です。
type Local struct {
	baseDir string
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// Save はファイルを保存します。name のパス要素は無視されます。
func (l *Local) Save(_ context.Context, name string, data []byte) error {
	if err := os.WriteFile(l.path(name), data, 0o640); err != nil {
		return fmt.Errorf("failed to save file %s: %w", name, err)
	}
	return nil
}

// Load はファイルを読み込みます。存在しない場合は ErrNotFound を返します。
func (l *Local) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load file %s: %w", name, err)
	}
	return data, nil
}

// Delete はファイルを削除します。存在しない場合もエラーにしません。
func (l *Local) Delete(_ context.Context, name string) error {
	if err := os.Remove(l.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

// path はディレクトリトラバーサルを防いだ保存パスを返します。
func (l *Local) path(name string) string {
	return filepath.Join(l.baseDir, filepath.Base(name))
}
