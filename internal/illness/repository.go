package illness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository owns all reads and writes of episodes, symptoms and
// diagnosis snapshots. No other component touches these tables.
type Repository interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*Episode, error)
	GetByID(ctx context.Context, userID, episodeID uuid.UUID) (*Episode, error)
	// CreateIfAbsent returns the user's active episode, creating one
	// when none exists. The second result reports whether a new episode
	// was created.
	CreateIfAbsent(ctx context.Context, userID uuid.UUID) (*Episode, bool, error)
	// CloseActive deactivates the active episode. It returns false with
	// no error when there was nothing to close.
	CloseActive(ctx context.Context, userID uuid.UUID) (bool, error)
	Reopen(ctx context.Context, userID, episodeID uuid.UUID) error
	UpdateEpisode(ctx context.Context, e *Episode) error
	TouchEpisode(ctx context.Context, episodeID uuid.UUID, at time.Time) error
	History(ctx context.Context, userID uuid.UUID, limit int) ([]Episode, error)

	InsertSymptom(ctx context.Context, s *Symptom) error
	// DeleteSymptom removes a symptom owned by the user and returns the
	// id of the episode it belonged to.
	DeleteSymptom(ctx context.Context, userID, symptomID uuid.UUID) (uuid.UUID, error)
	UpdateSymptomDate(ctx context.Context, userID, symptomID uuid.UUID, createdOn, at time.Time) (uuid.UUID, error)
	SymptomsByEpisode(ctx context.Context, userID, episodeID uuid.UUID) ([]Symptom, error)

	InsertDiagnosis(ctx context.Context, d *Diagnosis) error
	DiagnosesByEpisode(ctx context.Context, episodeID uuid.UUID) ([]Diagnosis, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

const episodeColumns = `id, user_id, title, active, created_on, updated_on`

func scanEpisode(row interface{ Scan(...any) error }) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Active, &e.CreatedOn, &e.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *postgresRepo) GetActive(ctx context.Context, userID uuid.UUID) (*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM illness WHERE user_id = $1 AND active`
	e, err := scanEpisode(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.attach(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, userID, episodeID uuid.UUID) (*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM illness WHERE id = $1 AND user_id = $2`
	e, err := scanEpisode(r.db.QueryRowContext(ctx, query, episodeID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.attach(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *postgresRepo) CreateIfAbsent(ctx context.Context, userID uuid.UUID) (*Episode, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	// Lock the user's active row (if any) so two concurrent submissions
	// cannot both decide to create an episode. The partial unique index
	// on (user_id) WHERE active backstops this.
	query := `SELECT ` + episodeColumns + ` FROM illness WHERE user_id = $1 AND active FOR UPDATE`
	e, err := scanEpisode(tx.QueryRowContext(ctx, query, userID))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		if err := r.attach(ctx, e); err != nil {
			return nil, false, err
		}
		return e, false, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, false, err
	}

	now := time.Now().UTC()
	created := &Episode{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     DefaultTitle,
		Active:    true,
		CreatedOn: now,
		UpdatedOn: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO illness (id, user_id, title, active, created_on, updated_on)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID, created.UserID, created.Title, created.Active, created.CreatedOn, created.UpdatedOn,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create episode: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	created.Symptoms = []Symptom{}
	created.Diagnoses = []Diagnosis{}
	return created, true, nil
}

func (r *postgresRepo) CloseActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var id uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM illness WHERE user_id = $1 AND active FOR UPDATE`, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE illness SET active = FALSE, updated_on = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *postgresRepo) Reopen(ctx context.Context, userID, episodeID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRowContext(ctx,
		`SELECT active FROM illness WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		episodeID, userID,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if active {
		return ErrConflict
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE illness SET active = FALSE, updated_on = $2 WHERE user_id = $1 AND active`,
		userID, now,
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE illness SET active = TRUE, updated_on = $2 WHERE id = $1`,
		episodeID, now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepo) UpdateEpisode(ctx context.Context, e *Episode) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE illness SET title = $2, created_on = $3, updated_on = $4 WHERE id = $1 AND user_id = $5`,
		e.ID, e.Title, e.CreatedOn, e.UpdatedOn, e.UserID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepo) TouchEpisode(ctx context.Context, episodeID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE illness SET updated_on = $2 WHERE id = $1`, episodeID, at,
	)
	return err
}

func (r *postgresRepo) History(ctx context.Context, userID uuid.UUID, limit int) ([]Episode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM illness
		 WHERE user_id = $1 AND NOT active
		 ORDER BY created_on DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []Episode{}
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range episodes {
		if err := r.attach(ctx, &episodes[i]); err != nil {
			return nil, err
		}
	}
	return episodes, nil
}

func (r *postgresRepo) InsertSymptom(ctx context.Context, s *Symptom) error {
	dataJSON, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO symptom (id, user_id, illness_id, title, data, created_on, updated_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.IllnessID, s.Title, dataJSON, s.CreatedOn, s.UpdatedOn,
	)
	return err
}

func (r *postgresRepo) DeleteSymptom(ctx context.Context, userID, symptomID uuid.UUID) (uuid.UUID, error) {
	var illnessID uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM symptom WHERE id = $1 AND user_id = $2 RETURNING illness_id`,
		symptomID, userID,
	).Scan(&illnessID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return illnessID, nil
}

func (r *postgresRepo) UpdateSymptomDate(ctx context.Context, userID, symptomID uuid.UUID, createdOn, at time.Time) (uuid.UUID, error) {
	var illnessID uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`UPDATE symptom SET created_on = $3, updated_on = $4 WHERE id = $1 AND user_id = $2 RETURNING illness_id`,
		symptomID, userID, createdOn, at,
	).Scan(&illnessID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return illnessID, nil
}

func (r *postgresRepo) SymptomsByEpisode(ctx context.Context, userID, episodeID uuid.UUID) ([]Symptom, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, illness_id, title, data, created_on, updated_on
		 FROM symptom
		 WHERE user_id = $1 AND illness_id = $2
		 ORDER BY created_on DESC, id`,
		userID, episodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSymptoms(rows)
}

func collectSymptoms(rows *sql.Rows) ([]Symptom, error) {
	symptoms := []Symptom{}
	for rows.Next() {
		var s Symptom
		var dataJSON []byte
		err := rows.Scan(&s.ID, &s.UserID, &s.IllnessID, &s.Title, &dataJSON, &s.CreatedOn, &s.UpdatedOn)
		if err != nil {
			return nil, err
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &s.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal symptom data: %w", err)
			}
		}
		symptoms = append(symptoms, s)
	}
	return symptoms, rows.Err()
}

func (r *postgresRepo) InsertDiagnosis(ctx context.Context, d *Diagnosis) error {
	dataJSON, err := json.Marshal(d.Conditions)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO diagnosis (id, user_id, illness_id, created_on, data)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.UserID, d.IllnessID, d.CreatedOn, dataJSON,
	)
	return err
}

func (r *postgresRepo) DiagnosesByEpisode(ctx context.Context, episodeID uuid.UUID) ([]Diagnosis, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, illness_id, created_on, data
		 FROM diagnosis
		 WHERE illness_id = $1
		 ORDER BY created_on, id`,
		episodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	diagnoses := []Diagnosis{}
	for rows.Next() {
		var d Diagnosis
		var dataJSON []byte
		if err := rows.Scan(&d.ID, &d.UserID, &d.IllnessID, &d.CreatedOn, &dataJSON); err != nil {
			return nil, err
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &d.Conditions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal diagnosis data: %w", err)
			}
		}
		diagnoses = append(diagnoses, d)
	}
	return diagnoses, rows.Err()
}

// attach loads the symptoms and the latest diagnosis snapshot onto an
// episode so that View() has everything the serialization contract needs.
func (r *postgresRepo) attach(ctx context.Context, e *Episode) error {
	symptoms, err := r.SymptomsByEpisode(ctx, e.UserID, e.ID)
	if err != nil {
		return err
	}
	e.Symptoms = symptoms

	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, illness_id, created_on, data
		 FROM diagnosis
		 WHERE illness_id = $1
		 ORDER BY created_on DESC, id DESC
		 LIMIT 1`,
		e.ID,
	)
	var d Diagnosis
	var dataJSON []byte
	err = row.Scan(&d.ID, &d.UserID, &d.IllnessID, &d.CreatedOn, &dataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		e.Diagnoses = []Diagnosis{}
		return nil
	}
	if err != nil {
		return err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &d.Conditions); err != nil {
			return fmt.Errorf("failed to unmarshal diagnosis data: %w", err)
		}
	}
	e.Diagnoses = []Diagnosis{d}
	return nil
}
