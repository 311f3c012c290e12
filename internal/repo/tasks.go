package repo

import (
	"context"
	"database/sql"

	"storyline/internal/domain"
)

const taskColumns = `id,story_id,title,description,status,assignee_id,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var assignee sql.NullString
	err := row.Scan(&t.ID, &t.StoryID, &t.Title, &t.Description, &status, &assignee, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.StoryID, t.Title, t.Description, string(t.Status), nullableStringPtr(t.AssigneeID), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, assignee_id=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, string(t.Status), nullableStringPtr(t.AssigneeID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ListTasksByStory returns the tasks of a story oldest first.
func (r Repo) ListTasksByStory(ctx context.Context, storyID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE story_id=? ORDER BY created_at ASC, id ASC`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
