// Package repository はドキュメントストアのインターフェースと実装を定義する。
//
// 共有ステートマシンはこのパッケージのDocumentStoreのみに依存し、
// 楽観的トランザクション・単一ドキュメント取得・フィールド一致検索の3機能を利用する。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound は指定パスのドキュメントが存在しないことを示す。
	ErrNotFound = errors.New("document not found")

	// ErrTransactionConflict はトランザクションの読み取り集合がコミット前に
	// 他のトランザクションによって変更されたことを示す。最初から再実行すれば成功し得る。
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrReadAfterWrite はトランザクション内で書き込み後に読み取りを行ったことを示す。
	ErrReadAfterWrite = errors.New("read after write in transaction")
)

// Document はストアに保存された1件のJSONドキュメント。
type Document struct {
	Path      string
	Data      json.RawMessage
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID はパス末尾のセグメントを返す。Appendで採番されたIDの復元に使う。
func (d *Document) ID() string {
	return DocumentID(d.Path)
}

// Decode はドキュメントの内容をvに読み込む。
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.Path, err)
	}
	return nil
}

// Transaction は1回のトランザクション試行のハンドル。
// Getはすべての書き込み操作より前に呼び出す必要がある。
type Transaction interface {
	// Get は指定パスのドキュメントを取得する。存在しない場合はErrNotFoundを返す。
	// 書き込み操作の後に呼び出した場合はErrReadAfterWriteを返す。
	Get(ctx context.Context, path string) (*Document, error)

	// Set は指定パスにvをJSONとして書き込む。既存のドキュメントは上書きされる。
	Set(ctx context.Context, path string, v any) error

	// Delete は指定パスのドキュメントを削除する。存在しない場合も成功する。
	Delete(ctx context.Context, path string) error

	// Append はコレクションに新しいIDでvを追加し、そのパスを返す。
	Append(ctx context.Context, collection string, v any) (string, error)
}

// TxFunc はトランザクション本体。エラーを返すと何も適用されない。
type TxFunc func(ctx context.Context, tx Transaction) error

// DocumentStore はドキュメントストアのインターフェース。
type DocumentStore interface {
	// RunTransaction はfnを1回実行し、読み取り集合が変更されていなければ書き込みを原子的に適用する。
	// 競合した場合はErrTransactionConflictを返す。再試行は呼び出し側が行う。
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Get はトランザクション外で指定パスのドキュメントを取得する。
	Get(ctx context.Context, path string) (*Document, error)

	// QueryByField はコレクション直下のドキュメントのうち、
	// トップレベルの文字列フィールドがvalueに一致するものをパス順で返す。
	QueryByField(ctx context.Context, collection, field, value string) ([]*Document, error)

	// Ping はストアへの接続を確認する。
	Ping(ctx context.Context) error
}
