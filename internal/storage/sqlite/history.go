package sqlite

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"raicompanion/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id      TEXT NOT NULL,
		source          TEXT NOT NULL DEFAULT 'http',
		input_text      TEXT NOT NULL,
		category        TEXT DEFAULT '',
		entry_level     TEXT DEFAULT '',
		mode            TEXT NOT NULL,
		model_alias     TEXT NOT NULL,
		provider        TEXT DEFAULT '',
		model           TEXT DEFAULT '',
		module_ids      TEXT DEFAULT '',
		module_count    INTEGER DEFAULT 0,
		premise_count   INTEGER DEFAULT 0,
		status          TEXT NOT NULL,
		error_message   TEXT DEFAULT '',
		tokens_used     INTEGER DEFAULT 0,
		latency_ms      INTEGER DEFAULT 0,
		selection_state TEXT DEFAULT 'scored',
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	CREATE INDEX IF NOT EXISTS idx_analyses_request_id ON analyses(request_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InsertAnalysis(db *sql.DB, rec domain.AnalysisRecord) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := db.Exec(
		`INSERT INTO analyses (request_id, source, input_text, category, entry_level, mode, model_alias,
		                       provider, model, module_ids, module_count, premise_count, status, error_message,
		                       tokens_used, latency_ms, selection_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Source, rec.InputText, string(rec.Category), string(rec.EntryLevel), string(rec.Mode),
		rec.ModelAlias, rec.Provider, rec.Model, rec.ModuleIDs, rec.ModuleCount, rec.PremiseCount, rec.Status,
		rec.ErrorMessage, rec.TokensUsed, rec.LatencyMillis, rec.SelectionState, createdAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func RecentAnalyses(db *sql.DB, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, request_id, source, input_text, category, entry_level, mode, model_alias, provider, model,
		        module_ids, module_count, premise_count, status, error_message, tokens_used, latency_ms,
		        selection_state, created_at
		 FROM analyses
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AnalysisRecord
	for rows.Next() {
		var r domain.AnalysisRecord
		var category, entry, mode string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Source, &r.InputText, &category, &entry, &mode,
			&r.ModelAlias, &r.Provider, &r.Model, &r.ModuleIDs, &r.ModuleCount, &r.PremiseCount, &r.Status,
			&r.ErrorMessage, &r.TokensUsed, &r.LatencyMillis, &r.SelectionState, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Category = domain.Category(category)
		r.EntryLevel = domain.Level(entry)
		r.Mode = domain.Mode(mode)
		out = append(out, r)
	}
	return out, rows.Err()
}

func GetStats(db *sql.DB, since time.Time) (domain.AnalysisStats, error) {
	s := domain.AnalysisStats{
		ByModel:    make(map[string]int),
		ByMode:     make(map[string]int),
		ByCategory: make(map[string]int),
	}
	since = since.UTC()
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status != 'ok' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN selection_state = 'fallback' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(CASE WHEN status = 'ok' THEN latency_ms END), 0),
		        COALESCE(SUM(tokens_used), 0)
		 FROM analyses WHERE created_at >= ?`,
		since,
	).Scan(&s.TotalAnalyses, &s.Succeeded, &s.Failed, &s.Fallbacks, &s.AvgLatencyMS, &s.TotalTokens)
	if err != nil {
		return s, err
	}

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"model_alias", s.ByModel},
		{"mode", s.ByMode},
		{"category", s.ByCategory},
	}
	for _, g := range groups {
		rows, err := db.Query(
			`SELECT `+g.column+`, COUNT(*) FROM analyses WHERE created_at >= ? GROUP BY `+g.column,
			since,
		)
		if err != nil {
			return s, err
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return s, err
			}
			if key != "" {
				g.into[key] = n
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return s, err
		}
	}

	s.MostUsedModule, err = mostUsedModule(db, since)
	return s, err
}

// mostUsedModule ignores CL-0, which every selection includes.
func mostUsedModule(db *sql.DB, since time.Time) (string, error) {
	rows, err := db.Query(`SELECT module_ids FROM analyses WHERE created_at >= ? AND module_ids != ''`, since)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ids string
		if err := rows.Scan(&ids); err != nil {
			return "", err
		}
		for _, id := range strings.Split(ids, ",") {
			if id != "" && id != domain.InputNormalizationModuleID {
				counts[id]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) == 0 {
		return "", nil
	}
	return keys[0], nil
}

func PruneBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM analyses WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
