package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/shopspring/decimal"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (t *table) selectList() string {
	cols := []string{"x.id", "x.created_at", "x.is_favorite", "x.tags"}
	for _, c := range t.plain {
		cols = append(cols, "x."+c)
	}
	for _, c := range t.sealed {
		cols = append(cols, "x."+c.column)
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *table) scanRow(m models.Module, s scanner) (*Row, error) {
	rec, err := models.New(m)
	if err != nil {
		return nil, err
	}
	env := rec.Envelope()

	var created, tagsJSON string
	var fav int
	dest := []any{&env.ID, &created, &fav, &tagsJSON}

	plainDest, finish := t.scan(rec)
	dest = append(dest, plainDest...)

	blobs := make([][]byte, len(t.sealed))
	for i := range blobs {
		dest = append(dest, &blobs[i])
	}

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, fmt.Errorf("failed to decode %s row %d: %w", t.name, env.ID, err)
	}
	if env.CreatedAt, err = models.ParseTime(created); err != nil {
		return nil, fmt.Errorf("failed to decode %s row %d: %w", t.name, env.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &env.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of %s row %d: %w", t.name, env.ID, err)
	}
	env.IsFavorite = fav == 1

	sealed := make(Sealed, len(t.sealed))
	for i, c := range t.sealed {
		if blobs[i] != nil {
			sealed[c.field] = blobs[i]
		}
	}
	return &Row{Record: rec, Sealed: sealed}, nil
}

func tokenColumn(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return " " + strings.Join(tokens, " ") + " "
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec models.Record, sealed Sealed, tokens []string) (int64, error) {
	env := rec.Envelope()
	t, err := tableFor(env.Module)
	if err != nil {
		return 0, err
	}

	tags, err := encodeTags(env.Tags)
	if err != nil {
		return 0, err
	}

	cols := []string{"created_at", "is_favorite", "tags", "search_tokens"}
	args := []any{models.FormatTime(env.CreatedAt), boolInt(env.IsFavorite), tags, tokenColumn(tokens)}
	cols = append(cols, t.plain...)
	args = append(args, t.values(rec)...)
	for _, c := range t.sealed {
		cols = append(cols, c.column)
		args = append(args, nullable(sealed[c.field]))
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) Get(ctx context.Context, m models.Module, id int64) (*Row, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %s x WHERE x.id = ?`, t.selectList(), t.name)
	row, err := t.scanRow(m, r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s record %d: %w", m, id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %d: %w", m, id, err)
	}
	return row, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, m models.Module, id int64) (bool, error) {
	t, err := tableFor(m)
	if err != nil {
		return false, err
	}
	var one int
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, t.name), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s record %d: %w", m, id, err)
	}
	return true, nil
}

// Update rewrites the plain columns of rec and the sealed columns present in
// sealed. A nil tokens slice leaves the blind index unchanged.
func (r *SQLiteRepository) Update(ctx context.Context, rec models.Record, sealed Sealed, tokens []string) error {
	env := rec.Envelope()
	t, err := tableFor(env.Module)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(t.plain)+len(sealed)+1)
	for _, c := range t.plain {
		sets = append(sets, c+" = ?")
	}
	args := t.values(rec)
	return r.exec(ctx, t, env.Module, env.ID, sets, args, sealed, tokens)
}

func (r *SQLiteRepository) UpdateSealed(ctx context.Context, m models.Module, id int64, sealed Sealed, tokens []string) error {
	t, err := tableFor(m)
	if err != nil {
		return err
	}
	return r.exec(ctx, t, m, id, nil, nil, sealed, tokens)
}

func (r *SQLiteRepository) exec(ctx context.Context, t *table, m models.Module, id int64, sets []string, args []any, sealed Sealed, tokens []string) error {
	for _, c := range t.sealed {
		if blob, ok := sealed[c.field]; ok {
			sets = append(sets, c.column+" = ?")
			args = append(args, nullable(blob))
		}
	}
	if tokens != nil {
		sets = append(sets, "search_tokens = ?")
		args = append(args, tokenColumn(tokens))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, t.name, strings.Join(sets, ", "))
	return r.affectOne(ctx, m, id, q, args...)
}

func (r *SQLiteRepository) affectOne(ctx context.Context, m models.Module, id int64, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s record %d: %w", m, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s record %d: %w", m, id, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) SetTags(ctx context.Context, m models.Module, id int64, tags []string) error {
	t, err := tableFor(m)
	if err != nil {
		return err
	}
	enc, err := encodeTags(tags)
	if err != nil {
		return err
	}
	return r.affectOne(ctx, m, id, fmt.Sprintf(`UPDATE %s SET tags = ? WHERE id = ?`, t.name), enc, id)
}

// SetFavorite reports whether the flag actually changed.
func (r *SQLiteRepository) SetFavorite(ctx context.Context, m models.Module, id int64, fav bool) (bool, error) {
	t, err := tableFor(m)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_favorite = ? WHERE id = ? AND is_favorite <> ?`, t.name),
		boolInt(fav), id, boolInt(fav))
	if err != nil {
		return false, fmt.Errorf("failed to set favorite on %s record %d: %w", m, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	ok, err := r.Exists(ctx, m, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%s record %d: %w", m, id, common.ErrorNotFound)
	}
	return false, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, m models.Module, id int64) error {
	t, err := tableFor(m)
	if err != nil {
		return err
	}
	return r.affectOne(ctx, m, id, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.name), id)
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

const tagExists = `EXISTS (SELECT 1 FROM record_tags rt WHERE rt.module = ? AND rt.record_id = x.id AND rt.tag = ?)`

func (w *where) common(m models.Module, from, to time.Time, tags []string) {
	if !from.IsZero() {
		w.add("x.created_at >= ?", models.FormatTime(from))
	}
	if !to.IsZero() {
		w.add("x.created_at < ?", models.FormatTime(to))
	}
	for _, tag := range tags {
		w.add(tagExists, string(m), tag)
	}
}

func (r *SQLiteRepository) query(ctx context.Context, t *table, m models.Module, q string, args ...any) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := t.scanRow(m, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", t.name, err)
	}
	return out, nil
}

// Page returns up to limit rows, most recent first, strictly after the
// cursor when one is given.
func (r *SQLiteRepository) Page(ctx context.Context, m models.Module, f models.ListFilter, after *Cursor, limit int) ([]Row, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}

	var w where
	w.common(m, f.From, f.To, f.Tags)
	if f.FavoriteOnly {
		w.add("x.is_favorite = 1")
	}
	if after != nil {
		w.add("(x.created_at, x.id) < (?, ?)", models.FormatTime(after.CreatedAt), after.ID)
	}

	q := fmt.Sprintf(`SELECT %s FROM %s x%s ORDER BY x.created_at DESC, x.id DESC LIMIT ?`, t.selectList(), t.name, w.String())
	return r.query(ctx, t, m, q, append(w.args, limit)...)
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search matches the query text against plain text columns and tags, and
// the query tokens against the blind index. An empty query matches every
// row that passes the filter.
func (r *SQLiteRepository) Search(ctx context.Context, m models.Module, sq SearchQuery) ([]Row, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}

	var w where
	w.common(m, sq.Filter.From, sq.Filter.To, sq.Filter.Tags)

	text := strings.ToLower(strings.TrimSpace(sq.Text))
	if text != "" || len(sq.Tokens) > 0 {
		var or where
		if text != "" {
			pattern := "%" + likeEscape(text) + "%"
			for _, c := range t.text {
				or.add(foldFunc+`(x.`+c+`) LIKE ? ESCAPE '\'`, pattern)
			}
			or.add(`EXISTS (SELECT 1 FROM record_tags rt WHERE rt.module = ? AND rt.record_id = x.id AND rt.tag LIKE ? ESCAPE '\')`, string(m), pattern)
		}
		for _, tok := range sq.Tokens {
			or.add("x.search_tokens LIKE ?", "% "+tok+" %")
		}
		w.add("("+strings.Join(or.clauses, " OR ")+")", or.args...)
	}

	q := fmt.Sprintf(`SELECT %s FROM %s x%s ORDER BY x.created_at DESC, x.id DESC`, t.selectList(), t.name, w.String())
	return r.query(ctx, t, m, q, w.args...)
}

func (r *SQLiteRepository) ids(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Favorites(ctx context.Context, m models.Module) ([]int64, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}
	ids, err := r.ids(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE is_favorite = 1 ORDER BY id`, t.name))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s favorites: %w", m, err)
	}
	return ids, nil
}

func (r *SQLiteRepository) IDsBefore(ctx context.Context, m models.Module, cutoff time.Time) ([]int64, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}
	ids, err := r.ids(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE created_at < ? ORDER BY id`, t.name), models.FormatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records before cutoff: %w", m, err)
	}
	return ids, nil
}

func (r *SQLiteRepository) AllTags(ctx context.Context, m models.Module) (map[int64][]string, error) {
	t, err := tableFor(m)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, tags FROM %s`, t.name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s tags: %w", m, err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var enc string
		if err := rows.Scan(&id, &enc); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(enc), &tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s row %d: %w", m, id, err)
		}
		out[id] = tags
	}
	return out, rows.Err()
}

// SpendingByCategory sums debit amounts per category for transactions that
// occurred in [from, to). A zero bound is open.
func (r *SQLiteRepository) SpendingByCategory(ctx context.Context, from, to time.Time) ([]models.CategorySpending, error) {
	var w where
	w.add("transaction_type = ?", string(models.TransactionDebit))
	if !from.IsZero() {
		w.add("occurred_at >= ?", models.FormatTime(from))
	}
	if !to.IsZero() {
		w.add("occurred_at < ?", models.FormatTime(to))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT category, amount FROM transactions`+w.String(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spending: %w", err)
	}
	defer rows.Close()

	byCat := make(map[string]*models.CategorySpending)
	for rows.Next() {
		var cat, amount string
		if err := rows.Scan(&cat, &amount); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to decode amount %q: %w", amount, err)
		}
		s, ok := byCat[cat]
		if !ok {
			s = &models.CategorySpending{Category: cat}
			byCat[cat] = s
		}
		s.Total = s.Total.Add(d)
		s.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.CategorySpending, 0, len(byCat))
	for _, s := range byCat {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (r *SQLiteRepository) MoodStatistics(ctx context.Context, since time.Time) ([]models.MoodStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mood_category, COUNT(*), AVG(sentiment_score)
		FROM journal_entries
		WHERE entry_date >= ? AND mood_category <> ''
		GROUP BY mood_category
		ORDER BY COUNT(*) DESC, mood_category`, models.FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query mood statistics: %w", err)
	}
	defer rows.Close()

	var out []models.MoodStat
	for rows.Next() {
		var s models.MoodStat
		if err := rows.Scan(&s.MoodCategory, &s.Count, &s.AvgSentiment); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// nullable keeps a missing blob NULL instead of an empty BLOB.
func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
