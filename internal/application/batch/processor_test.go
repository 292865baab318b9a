package batch_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/signalbot/internal/application/batch"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// memSignalStore implementa ports.SignalStore en memoria con el mismo CAS
// que el store real, para que los workers compitan de verdad por el claim.
type memSignalStore struct {
	mu      sync.Mutex
	signals map[string]domain.Signal
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{signals: make(map[string]domain.Signal)}
}

func (m *memSignalStore) Create(_ context.Context, s domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[s.ID] = s
	return nil
}

func (m *memSignalStore) Get(_ context.Context, id string) (domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return domain.Signal{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memSignalStore) Claim(_ context.Context, id string) (*domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok || s.Disposition != domain.DispositionPending {
		return nil, nil
	}
	s.Disposition = domain.DispositionClaimed
	m.signals[id] = s
	return &s, nil
}

func (m *memSignalStore) UpdateDisposition(_ context.Context, id string, from, to domain.Disposition) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Disposition != from {
		return domain.ErrValidation
	}
	s.Disposition = to
	m.signals[id] = s
	return nil
}

func (m *memSignalStore) FindPendingGroupedByURL(context.Context) ([]domain.SignalGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byURL := make(map[string][]domain.Signal)
	for _, s := range m.signals {
		if s.Disposition == domain.DispositionPending {
			byURL[s.URL] = append(byURL[s.URL], s)
		}
	}
	urls := make([]string, 0, len(byURL))
	for u := range byURL {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	var groups []domain.SignalGroup
	for _, u := range urls {
		groups = append(groups, domain.SignalGroup{URL: u, Signals: byURL[u]})
	}
	return groups, nil
}

func (m *memSignalStore) ExpireStale(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.signals {
		if s.Disposition == domain.DispositionPending && s.DetectedAt.Before(cutoff) {
			s.Disposition = domain.DispositionExpired
			m.signals[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memSignalStore) disposition(id string) domain.Disposition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[id].Disposition
}

type memPredictorStore struct {
	mu      sync.Mutex
	created []domain.Predictor
}

func (m *memPredictorStore) Create(_ context.Context, p domain.Predictor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, p)
	return nil
}

func (m *memPredictorStore) FindActiveByTarget(context.Context, string) ([]domain.Predictor, error) {
	return nil, nil
}

func (m *memPredictorStore) Consume(context.Context, string) error { return nil }

func (m *memPredictorStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// fakeDetector responde según el veredicto configurado por signal.
type fakeDetector struct {
	mu       sync.Mutex
	verdicts map[string]domain.DetectionResult
	errs     map[string]error
	calls    int
}

func (f *fakeDetector) ProcessSignal(_ context.Context, s domain.Signal) (domain.DetectionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[s.ID]; ok {
		return domain.DetectionResult{}, err
	}
	if v, ok := f.verdicts[s.ID]; ok {
		return v, nil
	}
	return domain.DetectionResult{ShouldCreatePredictor: true, Urgency: domain.UrgencyRoutine, Confidence: 0.6}, nil
}

type fakeFastPath struct {
	mu     sync.Mutex
	calls  int
	result *domain.Prediction
	err    error
}

func (f *fakeFastPath) Process(_ context.Context, _ domain.Signal, _ domain.DetectionResult) (*domain.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

// --- helpers ---

func pendingSignal(id, url string) domain.Signal {
	return domain.Signal{
		ID:          id,
		TargetID:    "AAPL",
		SourceID:    "reuters",
		Direction:   domain.DirectionBullish,
		Disposition: domain.DispositionPending,
		DetectedAt:  time.Now().UTC(),
		URL:         url,
	}
}

func newProcessor(signals *memSignalStore, predictors *memPredictorStore,
	detector *fakeDetector, fastPath *fakeFastPath) *batch.Processor {
	return batch.NewProcessor(batch.DefaultConfig(), signals, predictors, detector, fastPath, nil)
}

// --- tests ---

func TestRunBatchProcessing_RoutesByVerdict(t *testing.T) {
	signals := newMemSignalStore()
	ctx := context.Background()

	require.NoError(t, signals.Create(ctx, pendingSignal("sig-routine", "https://a")))
	require.NoError(t, signals.Create(ctx, pendingSignal("sig-reject", "https://b")))
	require.NoError(t, signals.Create(ctx, pendingSignal("sig-urgent", "https://c")))

	detector := &fakeDetector{verdicts: map[string]domain.DetectionResult{
		"sig-routine": {ShouldCreatePredictor: true, Urgency: domain.UrgencyRoutine, Confidence: 0.7},
		"sig-reject":  {ShouldCreatePredictor: false},
		"sig-urgent":  {ShouldCreatePredictor: true, Urgency: domain.UrgencyUrgent, Confidence: 0.95},
	}}
	predictors := &memPredictorStore{}
	fastPath := &fakeFastPath{result: &domain.Prediction{ID: "pr-1"}}

	result, err := newProcessor(signals, predictors, detector, fastPath).RunBatchProcessing(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.PredictorsCreated)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.FastPathTriggered)
	assert.Equal(t, 0, result.Errors)

	assert.Equal(t, domain.DispositionPredictorCreated, signals.disposition("sig-routine"))
	assert.Equal(t, domain.DispositionRejected, signals.disposition("sig-reject"))
	assert.Equal(t, domain.DispositionPredictorCreated, signals.disposition("sig-urgent"))
	assert.Equal(t, 1, predictors.count())
	assert.Equal(t, 1, fastPath.calls)
}

func TestRunBatchProcessing_PerSignalErrorContinues(t *testing.T) {
	signals := newMemSignalStore()
	ctx := context.Background()

	require.NoError(t, signals.Create(ctx, pendingSignal("sig-ok", "https://a")))
	require.NoError(t, signals.Create(ctx, pendingSignal("sig-bad", "https://b")))

	detector := &fakeDetector{
		verdicts: map[string]domain.DetectionResult{
			"sig-ok": {ShouldCreatePredictor: true, Urgency: domain.UrgencyRoutine, Confidence: 0.7},
		},
		errs: map[string]error{"sig-bad": errors.New("llm timeout")},
	}
	predictors := &memPredictorStore{}

	result, err := newProcessor(signals, predictors, detector, &fakeFastPath{}).RunBatchProcessing(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.PredictorsCreated)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, predictors.count())
}

func TestRunBatchProcessing_FastPathDeferredFallsBack(t *testing.T) {
	signals := newMemSignalStore()
	ctx := context.Background()
	require.NoError(t, signals.Create(ctx, pendingSignal("sig-1", "https://a")))

	detector := &fakeDetector{verdicts: map[string]domain.DetectionResult{
		"sig-1": {ShouldCreatePredictor: true, Urgency: domain.UrgencyUrgent, Confidence: 0.91},
	}}
	predictors := &memPredictorStore{}
	fastPath := &fakeFastPath{result: nil} // deferred

	result, err := newProcessor(signals, predictors, detector, fastPath).RunBatchProcessing(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, result.FastPathTriggered)
	assert.Equal(t, 1, result.PredictorsCreated)
	assert.Equal(t, 1, predictors.count())
	assert.Equal(t, domain.DispositionPredictorCreated, signals.disposition("sig-1"))
}

func TestRunBatchProcessing_NoDoubleProcessing(t *testing.T) {
	signals := newMemSignalStore()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, signals.Create(ctx, pendingSignal(
			string(rune('a'+i))+"-sig", "https://shared")))
	}

	detector := &fakeDetector{}
	predictors := &memPredictorStore{}
	p := newProcessor(signals, predictors, detector, &fakeFastPath{})

	// Dos runs concurrentes sobre el mismo backlog: el CAS garantiza que
	// cada signal se procesa exactamente una vez.
	var wg sync.WaitGroup
	results := make([]domain.BatchRunResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.RunBatchProcessing(ctx)
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, results[0].Processed+results[1].Processed)
	assert.Equal(t, 20, predictors.count())
	assert.Equal(t, 20, detector.calls)
}

func TestRunBatchProcessing_EmptyBacklog(t *testing.T) {
	result, err := newProcessor(newMemSignalStore(), &memPredictorStore{},
		&fakeDetector{}, &fakeFastPath{}).RunBatchProcessing(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total())
}

func TestExpireStale(t *testing.T) {
	signals := newMemSignalStore()
	ctx := context.Background()

	old := pendingSignal("sig-old", "https://a")
	old.DetectedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, signals.Create(ctx, old))
	require.NoError(t, signals.Create(ctx, pendingSignal("sig-new", "https://a")))

	p := newProcessor(signals, &memPredictorStore{}, &fakeDetector{}, &fakeFastPath{})
	n, err := p.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.DispositionExpired, signals.disposition("sig-old"))
	assert.Equal(t, domain.DispositionPending, signals.disposition("sig-new"))
}
