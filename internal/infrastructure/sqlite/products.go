package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lelook/backend/internal/domain"
)

const productColumns = `id, title, price, currency, image_url, source_link, seller, brand, description,
	category, rating, reviews_count, on_sale, free_shipping, source, fetched_at, embedding`

// Re-upserting an id only overwrites when the incoming record is at least as fresh.
const upsertProduct = `INSERT INTO products (` + productColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	price = excluded.price,
	currency = excluded.currency,
	image_url = excluded.image_url,
	source_link = excluded.source_link,
	seller = excluded.seller,
	brand = excluded.brand,
	description = excluded.description,
	category = excluded.category,
	rating = excluded.rating,
	reviews_count = excluded.reviews_count,
	on_sale = excluded.on_sale,
	free_shipping = excluded.free_shipping,
	source = excluded.source,
	fetched_at = excluded.fetched_at,
	embedding = excluded.embedding
WHERE excluded.fetched_at >= products.fetched_at`

// ProductIndex implements domain.VectorIndex. Structural filters run in SQL;
// cosine similarity is computed in Go over the filtered rows.
type ProductIndex struct {
	db *sql.DB
}

// NewProductIndex wraps an opened database
func NewProductIndex(db *sql.DB) *ProductIndex {
	return &ProductIndex{db: db}
}

// Upsert writes records in one transaction. Every record must carry an embedding.
func (p *ProductIndex) Upsert(ctx context.Context, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if records[i].ID == "" || !records[i].HasEmbedding() {
			return fmt.Errorf("%w: record %d lacks id or embedding", domain.ErrInvalidRequest, i)
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertProduct)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		args, err := productArgs(&records[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", records[i].ID, err)
		}
	}
	return tx.Commit()
}

// Search returns the query.Limit records most similar to query.Embedding among those matching the filters.
// Ties on similarity are broken by id.
func (p *ProductIndex) Search(ctx context.Context, query domain.VectorQuery) ([]domain.ScoredRecord, error) {
	where, args := filterClause(query.Filters)
	rows, err := p.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products"+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []domain.ScoredRecord
	for rows.Next() {
		record, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		if len(record.Embedding) != len(query.Embedding) {
			continue
		}
		scored = append(scored, domain.ScoredRecord{
			Record:     *record,
			Similarity: cosineSimilarity(query.Embedding, record.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})
	if query.Limit > 0 && len(scored) > query.Limit {
		scored = scored[:query.Limit]
	}
	return scored, nil
}

// Exists reports whether id is indexed
func (p *ProductIndex) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the record stored under id
func (p *ProductIndex) Get(ctx context.Context, id string) (*domain.ProductRecord, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	record, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	return record, err
}

// Count returns the number of indexed records
func (p *ProductIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, err
}

// filterClause translates structural predicates into a WHERE clause.
// A price bound excludes records without a price, as domain.SearchFilters.Matches does.
func filterClause(f domain.SearchFilters) (string, []any) {
	var conds []string
	var args []any

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.MinPrice != nil {
		conds = append(conds, "price IS NOT NULL AND price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		conds = append(conds, "price IS NOT NULL AND price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.FreeShipping != nil && *f.FreeShipping {
		conds = append(conds, "free_shipping = 1")
	}
	if f.OnSale != nil && *f.OnSale {
		conds = append(conds, "on_sale = 1")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.ProductRecord, error) {
	var (
		r            domain.ProductRecord
		category     string
		price        sql.NullFloat64
		rating       sql.NullFloat64
		reviews      sql.NullInt64
		onSale       bool
		freeShipping bool
		fetchedAt    int64
		embedding    string
	)
	err := s.Scan(&r.ID, &r.Title, &price, &r.Currency, &r.ImageURL, &r.SourceLink, &r.Seller, &r.Brand,
		&r.Description, &category, &rating, &reviews, &onSale, &freeShipping, &r.Source, &fetchedAt, &embedding)
	if err != nil {
		return nil, err
	}

	r.Category = domain.Category(category)
	if price.Valid {
		v := price.Float64
		r.Price = &v
	}
	if rating.Valid {
		v := rating.Float64
		r.Rating = &v
	}
	if reviews.Valid {
		v := int(reviews.Int64)
		r.ReviewsCount = &v
	}
	r.OnSale = onSale
	r.FreeShipping = freeShipping
	r.FetchedAt = time.Unix(0, fetchedAt).UTC()

	if err := json.Unmarshal([]byte(embedding), &r.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding of %s: %w", r.ID, err)
	}
	return &r, nil
}

func productArgs(r *domain.ProductRecord) ([]any, error) {
	embedding, err := json.Marshal(r.Embedding)
	if err != nil {
		return nil, err
	}
	category := r.Category
	if category == "" {
		category = domain.CategoryOther
	}
	return []any{
		r.ID, r.Title, nullFloat(r.Price), r.Currency, r.ImageURL, r.SourceLink, r.Seller, r.Brand,
		r.Description, string(category), nullFloat(r.Rating), nullInt(r.ReviewsCount),
		r.OnSale, r.FreeShipping, r.Source, r.FetchedAt.UnixNano(), string(embedding),
	}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// cosineSimilarity returns 0 for mismatched or zero vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
