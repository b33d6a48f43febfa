package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// シリアライズ失敗・デッドロック検出のSQLSTATE
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// PostgresDocumentStore はPostgreSQLのdocumentsテーブルを使用したドキュメントストア。
// 読み取りはトランザクション外で行い、コミット時にSERIALIZABLEトランザクション内で
// 読み取り集合のバージョンを再検証してから書き込む。
type PostgresDocumentStore struct {
	db *sql.DB
}

var _ DocumentStore = (*PostgresDocumentStore)(nil)

// NewPostgresDocumentStore はPostgresDocumentStoreを生成する。
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// Get は指定パスのドキュメントを取得する。
func (s *PostgresDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	doc := &Document{Path: path}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version, created_at, updated_at FROM documents WHERE path = $1`,
		path,
	).Scan(&data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}
	doc.Data = data
	return doc, nil
}

// QueryByField はコレクション直下でフィールドが一致するドキュメントをパス順で返す。
func (s *PostgresDocumentStore) QueryByField(ctx context.Context, collection, field, value string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, version, created_at, updated_at
		 FROM documents WHERE collection = $1 AND data->>$2 = $3
		 ORDER BY path ASC`,
		collection, field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		var data []byte
		if err := rows.Scan(&doc.Path, &data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ドキュメント行の読み取りに失敗しました: %w", err)
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の走査に失敗しました: %w", err)
	}
	return docs, nil
}

// RunTransaction はfnを実行し、書き込みがあればSERIALIZABLEトランザクションでコミットする。
func (s *PostgresDocumentStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	buf := newTxBuffer(s.Get)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	if len(buf.writes) == 0 {
		return nil
	}

	if err := s.commit(ctx, buf); err != nil {
		if isConflict(err) {
			return ErrTransactionConflict
		}
		return err
	}
	return nil
}

func (s *PostgresDocumentStore) commit(ctx context.Context, buf *txBuffer) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, path := range buf.readPaths() {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE path = $1 FOR UPDATE`,
			path,
		).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("バージョンの検証に失敗しました: %w", err)
		}
		if current != buf.reads[path] {
			return ErrTransactionConflict
		}
	}

	for _, w := range buf.writes {
		if w.delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, w.path); err != nil {
				return fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, collection, data, version, created_at, updated_at)
			 VALUES ($1, $2, $3, nextval('document_version_seq'), now(), now())
			 ON CONFLICT (path) DO UPDATE
			 SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
			w.path, CollectionOf(w.path), string(w.data),
		)
		if err != nil {
			return fmt.Errorf("ドキュメントの書き込みに失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Ping はデータベースへの接続を確認する。
func (s *PostgresDocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DeleteNotificationsBefore はcutoffより前に作成された通知ドキュメントを削除し、削除件数を返す。
func (s *PostgresDocumentStore) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection LIKE $1 AND created_at < $2`,
		CollectionNotifications+"/%", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い通知の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// isConflict はPostgreSQLのエラーが再試行可能な競合かどうかを判定する。
func isConflict(err error) bool {
	if errors.Is(err, ErrTransactionConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == sqlStateSerializationFailure || pqErr.Code == sqlStateDeadlockDetected
	}
	return false
}
