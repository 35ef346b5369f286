package illness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// historyLimit caps the number of closed episodes returned by History.
const historyLimit = 20

// ProfileProvider supplies the read-only user attributes the evidence
// builder needs.
type ProfileProvider interface {
	Profile(ctx context.Context, userID uuid.UUID) (Profile, error)
}

// MutationResult reports the outcome of a symptom mutation. The symptom
// write and the diagnosis recomputation are decoupled: DiagnosisErr set
// means the mutation itself persisted but no new snapshot was written.
type MutationResult struct {
	Episode        *Episode
	CreatedEpisode bool
	DiagnosisErr   error
}

type Service interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*Episode, error)
	Get(ctx context.Context, userID, episodeID uuid.UUID) (*Episode, error)
	History(ctx context.Context, userID uuid.UUID) ([]Episode, error)
	// Close deactivates the active episode; false means there was
	// nothing to close.
	Close(ctx context.Context, userID uuid.UUID) (bool, error)
	Reopen(ctx context.Context, userID, episodeID uuid.UUID) error
	Edit(ctx context.Context, userID, episodeID uuid.UUID, title string, start, end *time.Time) error
	AddSymptoms(ctx context.Context, userID uuid.UUID, payloads []SymptomData) (*MutationResult, error)
	RemoveSymptom(ctx context.Context, userID, symptomID uuid.UUID) (*MutationResult, error)
	EditSymptomDate(ctx context.Context, userID, symptomID uuid.UUID, newDate time.Time) error
}

type service struct {
	repo     Repository
	pipeline *Pipeline
	profiles ProfileProvider
	logger   *zap.Logger
}

func NewService(repo Repository, pipeline *Pipeline, profiles ProfileProvider, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		pipeline: pipeline,
		profiles: profiles,
		logger:   logger,
	}
}

func (s *service) GetActive(ctx context.Context, userID uuid.UUID) (*Episode, error) {
	return s.repo.GetActive(ctx, userID)
}

func (s *service) Get(ctx context.Context, userID, episodeID uuid.UUID) (*Episode, error) {
	return s.repo.GetByID(ctx, userID, episodeID)
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]Episode, error) {
	return s.repo.History(ctx, userID, historyLimit)
}

func (s *service) Close(ctx context.Context, userID uuid.UUID) (bool, error) {
	closed, err := s.repo.CloseActive(ctx, userID)
	if err != nil {
		return false, err
	}
	if closed {
		s.logger.Info("closed active episode", zap.String("user_id", userID.String()))
	}
	return closed, nil
}

func (s *service) Reopen(ctx context.Context, userID, episodeID uuid.UUID) error {
	return s.repo.Reopen(ctx, userID, episodeID)
}

func (s *service) Edit(ctx context.Context, userID, episodeID uuid.UUID, title string, start, end *time.Time) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	e, err := s.repo.GetByID(ctx, userID, episodeID)
	if err != nil {
		return err
	}
	e.Title = title
	if start != nil {
		e.CreatedOn = *start
	}
	e.UpdatedOn = time.Now().UTC()
	if end != nil {
		e.UpdatedOn = *end
	}
	// Title and date edits never trigger a re-diagnosis.
	return s.repo.UpdateEpisode(ctx, e)
}

func (s *service) AddSymptoms(ctx context.Context, userID uuid.UUID, payloads []SymptomData) (*MutationResult, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: no symptoms submitted", ErrValidation)
	}
	for _, p := range payloads {
		if p.ID == "" || p.CommonName == "" {
			return nil, fmt.Errorf("%w: symptom id and common_name are required", ErrValidation)
		}
	}

	episode, created, err := s.repo.CreateIfAbsent(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, p := range payloads {
		symptom := &Symptom{
			ID:        uuid.New(),
			UserID:    userID,
			IllnessID: episode.ID,
			Title:     p.CommonName,
			Data:      p,
			CreatedOn: now,
			UpdatedOn: now,
		}
		if err := s.repo.InsertSymptom(ctx, symptom); err != nil {
			return nil, fmt.Errorf("failed to save symptom: %w", err)
		}
	}
	if err := s.repo.TouchEpisode(ctx, episode.ID, now); err != nil {
		return nil, err
	}

	diagErr := s.runDiagnosis(ctx, userID, episode.ID)

	refreshed, err := s.repo.GetByID(ctx, userID, episode.ID)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		Episode:        refreshed,
		CreatedEpisode: created,
		DiagnosisErr:   diagErr,
	}, nil
}

func (s *service) RemoveSymptom(ctx context.Context, userID, symptomID uuid.UUID) (*MutationResult, error) {
	episodeID, err := s.repo.DeleteSymptom(ctx, userID, symptomID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.TouchEpisode(ctx, episodeID, time.Now().UTC()); err != nil {
		return nil, err
	}

	// The pipeline runs even when the last symptom was removed; a
	// snapshot over empty evidence is still a snapshot.
	diagErr := s.runDiagnosis(ctx, userID, episodeID)

	refreshed, err := s.repo.GetByID(ctx, userID, episodeID)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		Episode:      refreshed,
		DiagnosisErr: diagErr,
	}, nil
}

func (s *service) EditSymptomDate(ctx context.Context, userID, symptomID uuid.UUID, newDate time.Time) error {
	now := time.Now().UTC()
	episodeID, err := s.repo.UpdateSymptomDate(ctx, userID, symptomID, newDate, now)
	if err != nil {
		return err
	}
	// Date edits do not change the symptom set, so no re-diagnosis.
	return s.repo.TouchEpisode(ctx, episodeID, now)
}

// runDiagnosis executes the pipeline and reports its outcome separately
// from the mutation that triggered it. The prior snapshot stays intact
// on failure.
func (s *service) runDiagnosis(ctx context.Context, userID, episodeID uuid.UUID) error {
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user profile for diagnosis",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: profile: %v", ErrDiagnosisUnavailable, err)
	}

	if err := s.pipeline.Run(ctx, profile, userID, episodeID); err != nil {
		s.logger.Warn("diagnosis pipeline failed",
			zap.String("user_id", userID.String()),
			zap.String("episode_id", episodeID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
