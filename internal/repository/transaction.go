package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// writeOp はコミット時に適用する1件の書き込み。
type writeOp struct {
	path   string
	data   []byte
	delete bool
}

// readFunc はバックエンドからドキュメントを1件読み取る関数。
type readFunc func(ctx context.Context, path string) (*Document, error)

// txBuffer は各バックエンド共通のトランザクションハンドル。
// 読み取ったドキュメントのバージョンを記録し、書き込みはコミットまで保留する。
type txBuffer struct {
	read   readFunc
	reads  map[string]int64 // パス -> 観測したバージョン（存在しない場合は0）
	writes []writeOp
}

var _ Transaction = (*txBuffer)(nil)

func newTxBuffer(read readFunc) *txBuffer {
	return &txBuffer{read: read, reads: map[string]int64{}}
}

// Get はドキュメントを読み取り、最初に観測したバージョンを記録する。
func (b *txBuffer) Get(ctx context.Context, path string) (*Document, error) {
	if len(b.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}
	doc, err := b.read(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.observe(path, 0)
		}
		return nil, err
	}
	b.observe(path, doc.Version)
	return doc, nil
}

func (b *txBuffer) observe(path string, version int64) {
	if _, ok := b.reads[path]; !ok {
		b.reads[path] = version
	}
}

// Set はJSONに変換した書き込みを保留する。
func (b *txBuffer) Set(_ context.Context, path string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}
	b.writes = append(b.writes, writeOp{path: path, data: data})
	return nil
}

// Delete は削除を保留する。
func (b *txBuffer) Delete(_ context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	b.writes = append(b.writes, writeOp{path: path, delete: true})
	return nil
}

// Append はUUIDで採番したパスへの書き込みを保留する。
func (b *txBuffer) Append(ctx context.Context, collection string, v any) (string, error) {
	path := collection + "/" + uuid.NewString()
	if err := b.Set(ctx, path, v); err != nil {
		return "", err
	}
	return path, nil
}

// readPaths は読み取り集合のパスをソートして返す。
// ロック取得順を固定し、バックエンド側のデッドロックを避ける。
func (b *txBuffer) readPaths() []string {
	paths := make([]string, 0, len(b.reads))
	for p := range b.reads {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// fieldEquals はJSONドキュメントのトップレベル文字列フィールドがvalueと一致するかを返す。
func fieldEquals(data []byte, field, value string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	raw, ok := fields[field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == value
}
