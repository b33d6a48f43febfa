package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	data      []byte
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// MemoryDocumentStore はプロセス内のマップを使用したドキュメントストア。
// テストと単一プロセスでの動作確認に使用する。
type MemoryDocumentStore struct {
	mu      sync.Mutex
	docs    map[string]memoryRecord
	version int64
	now     func() time.Time
}

var _ DocumentStore = (*MemoryDocumentStore)(nil)

// NewMemoryDocumentStore は空のMemoryDocumentStoreを生成する。
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs: map[string]memoryRecord{},
		now:  time.Now,
	}
}

// Get はトランザクション外で指定パスのドキュメントを取得する。
func (s *MemoryDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.document(path), nil
}

// QueryByField はコレクション直下でフィールドが一致するドキュメントをパス順で返す。
func (s *MemoryDocumentStore) QueryByField(ctx context.Context, collection, field, value string) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []*Document
	for path, rec := range s.docs {
		if CollectionOf(path) != collection || !fieldEquals(rec.data, field, value) {
			continue
		}
		docs = append(docs, rec.document(path))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// RunTransaction はfnを実行し、読み取り集合のバージョンが変わっていなければ書き込みを適用する。
// fnの実行中はロックを保持しないため、並行するトランザクションは競合として検出される。
func (s *MemoryDocumentStore) RunTransaction(ctx context.Context, fn TxFunc) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range buf.readPaths() {
		var current int64
		if rec, ok := s.docs[path]; ok {
			current = rec.version
		}
		if current != buf.reads[path] {
			return ErrTransactionConflict
		}
	}

	now := s.now()
	for _, w := range buf.writes {
		if w.delete {
			delete(s.docs, w.path)
			continue
		}
		s.version++
		rec, ok := s.docs[w.path]
		if !ok {
			rec.createdAt = now
		}
		rec.data = w.data
		rec.version = s.version
		rec.updatedAt = now
		s.docs[w.path] = rec
	}
	return nil
}

// Ping は常に成功する。
func (s *MemoryDocumentStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len は保存されているドキュメント数を返す。
func (s *MemoryDocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Paths はprefixで始まるパスをソートして返す。
func (s *MemoryDocumentStore) Paths(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paths []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func (r memoryRecord) document(path string) *Document {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &Document{
		Path:      path,
		Data:      data,
		Version:   r.version,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
}
