package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var documentsBucket = []byte("documents")

// boltRecord はbbolt上に保存するドキュメントの外枠。
type boltRecord struct {
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Data      json.RawMessage `json:"data"`
}

// BoltDocumentStore はbboltの埋め込みファイルを使用したドキュメントストア。
// 単一ノード構成向け。コミット時の検証と書き込みは1回のdb.Update内で行う。
type BoltDocumentStore struct {
	db  *bolt.DB
	now func() time.Time
}

var _ DocumentStore = (*BoltDocumentStore)(nil)

// OpenBoltDocumentStore は指定パスのbboltファイルを開き、バケットを作成する。
func OpenBoltDocumentStore(path string) (*BoltDocumentStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt path is required")
	}

	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents bucket: %w", err)
	}

	return &BoltDocumentStore{db: db, now: time.Now}, nil
}

// Close はbboltファイルを閉じる。
func (s *BoltDocumentStore) Close() error {
	return s.db.Close()
}

// Get は指定パスのドキュメントを取得する。
func (s *BoltDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *Document
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(documentsBucket).Get([]byte(path))
		if raw == nil {
			return ErrNotFound
		}
		d, err := decodeBoltRecord(path, raw)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// QueryByField はコレクション直下でフィールドが一致するドキュメントをパス順で返す。
func (s *BoltDocumentStore) QueryByField(ctx context.Context, collection, field, value string) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(collection + "/")
	var docs []*Document
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(documentsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			path := string(k)
			if CollectionOf(path) != collection {
				continue
			}
			doc, err := decodeBoltRecord(path, v)
			if err != nil {
				return err
			}
			if fieldEquals(doc.Data, field, value) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// RunTransaction はfnを実行し、1回のdb.Update内でバージョンを検証して書き込みを適用する。
func (s *BoltDocumentStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := newTxBuffer(s.Get)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	if len(buf.writes) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(documentsBucket)

		for _, path := range buf.readPaths() {
			var current int64
			if raw := b.Get([]byte(path)); raw != nil {
				doc, err := decodeBoltRecord(path, raw)
				if err != nil {
					return err
				}
				current = doc.Version
			}
			if current != buf.reads[path] {
				return ErrTransactionConflict
			}
		}

		now := s.now().UTC()
		for _, w := range buf.writes {
			key := []byte(w.path)
			if w.delete {
				if err := b.Delete(key); err != nil {
					return fmt.Errorf("deleting document %s: %w", w.path, err)
				}
				continue
			}

			version, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating version for %s: %w", w.path, err)
			}
			rec := boltRecord{Version: int64(version), CreatedAt: now, UpdatedAt: now, Data: w.data}
			if raw := b.Get(key); raw != nil {
				prev, err := decodeBoltRecord(w.path, raw)
				if err != nil {
					return err
				}
				rec.CreatedAt = prev.CreatedAt
			}

			encoded, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshaling document %s: %w", w.path, err)
			}
			if err := b.Put(key, encoded); err != nil {
				return fmt.Errorf("writing document %s: %w", w.path, err)
			}
		}
		return nil
	})
}

// Ping はbboltファイルが開いていることを確認する。
func (s *BoltDocumentStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func decodeBoltRecord(path string, raw []byte) (*Document, error) {
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling document %s: %w", path, err)
	}
	return &Document{
		Path:      path,
		Data:      rec.Data,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
