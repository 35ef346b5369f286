package illness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"symptom-tracker/internal/infermedica"
)

// DiagnosisClient is the surface of the external diagnosis service the
// pipeline needs. Defined here so tests can fake it without network
// access.
type DiagnosisClient interface {
	Diagnose(ctx context.Context, ev infermedica.Evidence) ([]infermedica.Condition, error)
	Explain(ctx context.Context, ev infermedica.Evidence, targetID string) (infermedica.Explanation, error)
	ConditionInfo(ctx context.Context, conditionID string) (infermedica.ConditionDetails, error)
}

// Pipeline runs the diagnosis orchestration: evidence → diagnose →
// per-condition enrichment → one appended snapshot. A failure at any
// stage aborts the run without writing anything.
type Pipeline struct {
	repo        Repository
	client      DiagnosisClient
	concurrency int
	logger      *zap.Logger
}

func NewPipeline(repo Repository, client DiagnosisClient, concurrency int, logger *zap.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		repo:        repo,
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run recomputes the diagnosis for an episode from its full current
// symptom set. It runs on empty evidence too; deleting the last symptom
// still produces a fresh snapshot.
func (p *Pipeline) Run(ctx context.Context, profile Profile, userID, episodeID uuid.UUID) error {
	symptoms, err := p.repo.SymptomsByEpisode(ctx, userID, episodeID)
	if err != nil {
		return fmt.Errorf("failed to load symptoms: %w", err)
	}

	ev := BuildEvidence(profile, symptoms, time.Now().UTC())

	raw, err := p.client.Diagnose(ctx, ev)
	if err != nil {
		return fmt.Errorf("%w: diagnose: %v", ErrDiagnosisUnavailable, err)
	}

	conditions, err := p.enrich(ctx, ev, raw)
	if err != nil {
		return err
	}

	d := &Diagnosis{
		ID:         uuid.New(),
		UserID:     userID,
		IllnessID:  episodeID,
		CreatedOn:  time.Now().UTC(),
		Conditions: conditions,
	}
	if err := p.repo.InsertDiagnosis(ctx, d); err != nil {
		return fmt.Errorf("failed to persist diagnosis: %w", err)
	}

	p.logger.Info("diagnosis snapshot written",
		zap.String("episode_id", episodeID.String()),
		zap.Int("evidence_count", len(ev.Evidence)),
		zap.Int("condition_count", len(conditions)),
	)
	return nil
}

// enrich augments every candidate with its explanation and static
// metadata. The two calls per condition run sequentially inside one
// task, but tasks fan out across conditions up to the configured bound.
// Output order matches the order diagnose returned. Any failure fails
// the whole enrichment; partial records are never emitted.
func (p *Pipeline) enrich(ctx context.Context, ev infermedica.Evidence, raw []infermedica.Condition) ([]Condition, error) {
	out := make([]Condition, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, rc := range raw {
		i, rc := i, rc
		g.Go(func() error {
			// The explanation always uses the full current evidence,
			// not just the symptoms added since the last run.
			expl, err := p.client.Explain(gctx, ev, rc.ID)
			if err != nil {
				return fmt.Errorf("%w: explain %s: %v", ErrDiagnosisUnavailable, rc.ID, err)
			}
			info, err := p.client.ConditionInfo(gctx, rc.ID)
			if err != nil {
				return fmt.Errorf("%w: condition info %s: %v", ErrDiagnosisUnavailable, rc.ID, err)
			}
			out[i] = mergeCondition(rc, expl, info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeCondition(rc infermedica.Condition, expl infermedica.Explanation, info infermedica.ConditionDetails) Condition {
	supporting := expl.Supporting
	if supporting == nil {
		supporting = []infermedica.ExplanationItem{}
	}
	// Opposing evidence is the conflicting list followed by the
	// unconfirmed list, in that order.
	opposing := make([]infermedica.ExplanationItem, 0, len(expl.Conflicting)+len(expl.Unconfirmed))
	opposing = append(opposing, expl.Conflicting...)
	opposing = append(opposing, expl.Unconfirmed...)

	return Condition{
		ID:                 rc.ID,
		Name:               rc.Name,
		CommonName:         rc.CommonName,
		Probability:        rc.Probability,
		SupportingSymptoms: supporting,
		OpposingSymptoms:   opposing,
		Hint:               info.Extras.Hint,
		Categories:         info.Categories,
		Prevalence:         info.Prevalence,
		Severity:           info.Severity,
	}
}
