package repo

import (
	"context"
	"database/sql"
	"strings"

	"storyline/internal/domain"
)

const storyColumns = `id,title,description,status,specification_text,design_reference,creator_id,assignee_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (domain.Story, error) {
	var s domain.Story
	var status string
	var spec, design sql.NullString
	err := row.Scan(&s.ID, &s.Title, &s.Description, &status, &spec, &design, &s.CreatorID, &s.AssigneeID, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Status = domain.Status(status)
	if spec.Valid {
		s.SpecificationText = spec.String
	}
	if design.Valid {
		s.DesignReference = design.String
	}
	return s, nil
}

func (r Repo) InsertStory(ctx context.Context, tx *sql.Tx, s domain.Story) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO stories(`+storyColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Title, s.Description, string(s.Status), nullable(s.SpecificationText), nullable(s.DesignReference),
		s.CreatorID, s.AssigneeID, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetStory(ctx context.Context, id string) (domain.Story, error) {
	return scanStory(r.DB.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id=?`, id))
}

func (r Repo) GetStoryTx(ctx context.Context, tx *sql.Tx, id string) (domain.Story, error) {
	return scanStory(tx.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id=?`, id))
}

func (r Repo) StoryExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM stories WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStory persists every mutable column. The specification column is written with
// COALESCE so an empty value in s never clears an existing specification.
func (r Repo) UpdateStory(ctx context.Context, tx *sql.Tx, s domain.Story) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE stories SET title=?, description=?, status=?, specification_text=COALESCE(?, specification_text), design_reference=?, assignee_id=?, updated_at=? WHERE id=?`,
		s.Title, s.Description, string(s.Status), nullable(s.SpecificationText), nullable(s.DesignReference), s.AssigneeID, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteStory(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM stories WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type StoryFilters struct {
	Status          domain.Status
	Keyword         string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListStories(ctx context.Context, f StoryFilters) ([]domain.Story, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + kw + "%"
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		args = append(args, like, like)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + storyColumns + ` FROM stories ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountStoriesByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM stories GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.Status(status)] = count
	}
	return res, rows.Err()
}

// CountSpecificationCoverage returns how many stories carry a specification and the total.
func (r Repo) CountSpecificationCoverage(ctx context.Context) (with, total int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN specification_text IS NOT NULL AND specification_text <> '' THEN 1 ELSE 0 END),0),
  count(*)
FROM stories`).Scan(&with, &total)
	return with, total, err
}

func (r Repo) RecentlyUpdatedStories(ctx context.Context, limit int) ([]domain.StoryActivity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,status,updated_at FROM stories ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StoryActivity
	for rows.Next() {
		var a domain.StoryActivity
		var status string
		if err := rows.Scan(&a.ID, &a.Title, &status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Status = domain.Status(status)
		res = append(res, a)
	}
	return res, rows.Err()
}
