package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// BM25 scoring parameters fixed by spec §4.5.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	minTokenLen = 2
	maxTokenLen = 40
)

var tokenSplitRE = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Tokenize lowercases text and splits on non-alphanumeric runs, dropping
// tokens shorter than 2 or longer than 40 characters. No stemming, per
// spec §4.5.
func Tokenize(text string) []string {
	fields := tokenSplitRE.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLen || len(f) > maxTokenLen {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// SQLiteKeywordStore is the KeywordStore implementation: token postings
// persisted in a pure-Go SQLite database (keywords.db), with Okapi BM25
// (k1=1.2, b=0.75) computed directly over document frequency and term
// frequency rather than through FTS5's built-in ranking, so the returned
// scores are the untransformed BM25 values spec §4.5 requires.
type SQLiteKeywordStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteKeywordStore opens (creating if absent) the keyword store at
// path. An empty path opens an in-memory database, used by tests.
func NewSQLiteKeywordStore(path string) (*SQLiteKeywordStore, error) {
	dsn := path
	if path == "" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create keyword store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open keyword store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, avoids SQLITE_BUSY

	s := &SQLiteKeywordStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteKeywordStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS docs (
			id     TEXT PRIMARY KEY,
			length INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS postings (
			term   TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			freq   INTEGER NOT NULL,
			PRIMARY KEY (term, doc_id)
		);
		CREATE INDEX IF NOT EXISTS postings_term_idx ON postings(term);
		CREATE INDEX IF NOT EXISTS postings_doc_idx ON postings(doc_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate keyword store: %w", err)
	}
	return nil
}

// Upsert tokenizes text and replaces id's postings and document length.
func (s *SQLiteKeywordStore) Upsert(ctx context.Context, id, text string) error {
	tokens := Tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM postings WHERE doc_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO docs (id, length) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET length = excluded.length
	`, id, len(tokens)); err != nil {
		return err
	}
	for term, freq := range freqs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO postings (term, doc_id, freq) VALUES (?, ?, ?)`, term, id, freq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes id's document and postings.
func (s *SQLiteKeywordStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM postings WHERE doc_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Search computes Okapi BM25 scores for queryText's terms over the
// current postings and returns the top k, descending by score then
// ascending by id.
func (s *SQLiteKeywordStore) Search(ctx context.Context, queryText string, k int) ([]KeywordResult, error) {
	terms := uniqueTerms(Tokenize(queryText))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	var avgdl float64
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(length), 0) FROM docs`)
	if err := row.Scan(&n, &avgdl); err != nil {
		return nil, fmt.Errorf("bm25 corpus stats: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	lengths := make(map[string]int)

	for _, term := range terms {
		var df int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings WHERE term = ?`, term).Scan(&df); err != nil {
			return nil, fmt.Errorf("bm25 df for %q: %w", term, err)
		}
		if df == 0 {
			continue
		}
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		rows, err := s.db.QueryContext(ctx, `
			SELECT p.doc_id, p.freq, d.length
			FROM postings p JOIN docs d ON d.id = p.doc_id
			WHERE p.term = ?
		`, term)
		if err != nil {
			return nil, fmt.Errorf("bm25 postings for %q: %w", term, err)
		}
		for rows.Next() {
			var docID string
			var freq, length int
			if err := rows.Scan(&docID, &freq, &length); err != nil {
				rows.Close()
				return nil, err
			}
			lengths[docID] = length
			tf := float64(freq)
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(length)/avgdl)
			scores[docID] += idf * (tf * (bm25K1 + 1)) / denom
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	results := make([]KeywordResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, KeywordResult{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (s *SQLiteKeywordStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (s *SQLiteKeywordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

var _ KeywordStore = (*SQLiteKeywordStore)(nil)
