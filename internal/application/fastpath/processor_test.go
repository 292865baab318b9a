package fastpath_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/signalbot/internal/application/fastpath"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakePredictorStore struct {
	created  []domain.Predictor
	consumed []string

	createErr  error
	consumeErr error
}

func (f *fakePredictorStore) Create(_ context.Context, p domain.Predictor) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakePredictorStore) FindActiveByTarget(context.Context, string) ([]domain.Predictor, error) {
	return nil, nil
}

func (f *fakePredictorStore) Consume(_ context.Context, id string) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	f.consumed = append(f.consumed, id)
	return nil
}

type fakePredictionStore struct {
	created   []domain.Prediction
	createErr error
}

func (f *fakePredictionStore) Create(_ context.Context, p domain.Prediction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakePredictionStore) Get(context.Context, string) (domain.Prediction, error) {
	return domain.Prediction{}, domain.ErrNotFound
}

func (f *fakePredictionStore) SetOutcome(context.Context, string, float64, time.Time) error {
	return nil
}

func (f *fakePredictionStore) FindResolvedUnevaluated(context.Context, int) ([]domain.Prediction, error) {
	return nil, nil
}

func (f *fakePredictionStore) FindExpiredWithoutOutcome(context.Context, int) ([]domain.Prediction, error) {
	return nil, nil
}

func (f *fakePredictionStore) MarkEvaluated(context.Context, string, float64) error {
	return nil
}

type fakeSnapshotStore struct {
	saved   []string
	saveErr error
}

func (f *fakeSnapshotStore) SaveSnapshot(_ context.Context, predictionID, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, predictionID)
	return nil
}

type recordingSink struct {
	events []ports.Event
}

func (s *recordingSink) Emit(e ports.Event) { s.events = append(s.events, e) }

func (s *recordingSink) stages() []string {
	var out []string
	for _, e := range s.events {
		out = append(out, e.Stage)
	}
	return out
}

func (s *recordingSink) progress() []int {
	var out []int
	for _, e := range s.events {
		out = append(out, e.Progress)
	}
	return out
}

func (s *recordingSink) types() []string {
	var out []string
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// --- helpers ---

func urgentSignal() domain.Signal {
	return domain.Signal{
		ID:        "sig-1",
		TargetID:  "AAPL",
		SourceID:  "reuters",
		Direction: domain.DirectionBullish,
	}
}

func urgentResult(confidence float64) domain.DetectionResult {
	return domain.DetectionResult{
		ShouldCreatePredictor: true,
		Urgency:               domain.UrgencyUrgent,
		Confidence:            confidence,
		Reasoning:             "surprise guidance raise",
		AnalystSlug:           "earnings-watcher",
	}
}

func newProcessor(predictors *fakePredictorStore, predictions *fakePredictionStore,
	snapshots *fakeSnapshotStore, sink ports.ObservabilitySink) *fastpath.Processor {
	return fastpath.NewProcessor(fastpath.DefaultConfig(), predictors, predictions, snapshots, sink)
}

// --- tests ---

func TestProcess_HappyPath(t *testing.T) {
	predictors := &fakePredictorStore{}
	predictions := &fakePredictionStore{}
	snapshots := &fakeSnapshotStore{}
	sink := &recordingSink{}

	p := newProcessor(predictors, predictions, snapshots, sink)
	prediction, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.94))
	require.NoError(t, err)
	require.NotNil(t, prediction)

	assert.Equal(t, domain.PredictionUp, prediction.Direction)
	assert.Equal(t, domain.MagnitudeMedium, prediction.Magnitude)
	assert.InDelta(t, 0.94, prediction.Confidence, 0.001)

	require.Len(t, predictors.created, 1)
	assert.Equal(t, []string{predictors.created[0].ID}, predictors.consumed)
	require.Len(t, predictions.created, 1)
	assert.Equal(t, []string{prediction.ID}, snapshots.saved)

	assert.Equal(t, []string{
		fastpath.StageStarted, fastpath.StagePredictorCreated,
		fastpath.StageThresholdMet, fastpath.StagePredictionGenerated,
		fastpath.StageSnapshotCreated, fastpath.StageCompleted,
	}, sink.stages())
	assert.Equal(t, []int{0, 25, 50, 75, 85, 100}, sink.progress())
}

func TestProcess_MagnitudeFromConfidence(t *testing.T) {
	cases := []struct {
		confidence float64
		want       domain.Magnitude
	}{
		{0.98, domain.MagnitudeLarge},
		{0.97, domain.MagnitudeLarge},
		{0.95, domain.MagnitudeMedium},
		{0.93, domain.MagnitudeMedium},
		{0.91, domain.MagnitudeSmall},
	}
	for _, tc := range cases {
		predictions := &fakePredictionStore{}
		p := newProcessor(&fakePredictorStore{}, predictions, &fakeSnapshotStore{}, nil)

		got, err := p.Process(context.Background(), urgentSignal(), urgentResult(tc.confidence))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tc.want, got.Magnitude, "confidence %.2f", tc.confidence)
	}
}

func TestProcess_BelowThresholdDeferred(t *testing.T) {
	predictors := &fakePredictorStore{}
	sink := &recordingSink{}
	p := newProcessor(predictors, &fakePredictionStore{}, &fakeSnapshotStore{}, sink)

	prediction, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.85))
	require.NoError(t, err)
	assert.Nil(t, prediction)
	assert.Empty(t, predictors.created)
	assert.Equal(t, []string{fastpath.StageStarted, fastpath.StageDeferred}, sink.stages())
}

func TestProcess_SnapshotFailureNonFatal(t *testing.T) {
	snapshots := &fakeSnapshotStore{saveErr: errors.New("disk full")}
	sink := &recordingSink{}
	p := newProcessor(&fakePredictorStore{}, &fakePredictionStore{}, snapshots, sink)

	prediction, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.95))
	require.NoError(t, err)
	require.NotNil(t, prediction)

	// Se salta snapshot_created pero llega a completed igualmente.
	assert.NotContains(t, sink.stages(), fastpath.StageSnapshotCreated)
	assert.Contains(t, sink.stages(), fastpath.StageCompleted)
}

func TestProcess_PredictionCreateFailureAborts(t *testing.T) {
	predictions := &fakePredictionStore{createErr: errors.New("db locked")}
	sink := &recordingSink{}
	p := newProcessor(&fakePredictorStore{}, predictions, &fakeSnapshotStore{}, sink)

	prediction, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.95))
	require.Error(t, err)
	assert.Nil(t, prediction)
	assert.Contains(t, sink.stages(), fastpath.StageAborted)
	assert.NotContains(t, sink.stages(), fastpath.StageCompleted)

	// El fallo sale como evento de error, separado del stream de progreso.
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, "fast_path_error", last.Type)
	assert.Contains(t, last.Detail, "db locked")
	for _, typ := range sink.types()[:len(sink.events)-1] {
		assert.Equal(t, "fast_path_progress", typ)
	}
}

func TestProcess_DeferredIsNotAnError(t *testing.T) {
	sink := &recordingSink{}
	p := newProcessor(&fakePredictorStore{}, &fakePredictionStore{}, &fakeSnapshotStore{}, sink)

	_, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.85))
	require.NoError(t, err)
	assert.NotContains(t, sink.types(), "fast_path_error")
}

func TestProcess_PredictorCreateFailureAborts(t *testing.T) {
	predictors := &fakePredictorStore{createErr: errors.New("db locked")}
	p := newProcessor(predictors, &fakePredictionStore{}, &fakeSnapshotStore{}, nil)

	_, err := p.Process(context.Background(), urgentSignal(), urgentResult(0.95))
	require.Error(t, err)
}
