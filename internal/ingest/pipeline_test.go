package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/dedup"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// --- fakes en memoria, con comportamiento real de lookup ---

type memSeenStore struct {
	rows map[string]domain.SeenItem
}

func newMemSeenStore() *memSeenStore {
	return &memSeenStore{rows: make(map[string]domain.SeenItem)}
}

func (m *memSeenStore) MarkSeen(_ context.Context, sourceID, hash, url, targetID string) (ports.MarkSeenResult, error) {
	key := sourceID + "|" + hash
	if row, ok := m.rows[key]; ok {
		return ports.MarkSeenResult{IsNew: false, Seen: row}, nil
	}
	row := domain.SeenItem{SourceID: sourceID, ContentHash: hash, URL: url, FirstSeenAt: time.Now()}
	m.rows[key] = row
	return ports.MarkSeenResult{IsNew: true, Seen: row}, nil
}

func (m *memSeenStore) HasBeenSeenForTarget(_ context.Context, hash, _, excludeSource string) (bool, error) {
	for key := range m.rows {
		parts := strings.SplitN(key, "|", 2)
		if parts[1] == hash && parts[0] != excludeSource {
			return true, nil
		}
	}
	return false, nil
}

type memFingerprintStore struct {
	fps []domain.ContentFingerprint
}

func (m *memFingerprintStore) FindRecentForTarget(_ context.Context, targetID string, _, limit int) ([]domain.ContentFingerprint, error) {
	var out []domain.ContentFingerprint
	for _, fp := range m.fps {
		if fp.TargetID == targetID {
			out = append(out, fp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memFingerprintStore) FindByPhraseOverlap(_ context.Context, targetID string, phrases []string, _, _ int) ([]domain.PhraseOverlap, error) {
	want := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		want[p] = true
	}
	var out []domain.PhraseOverlap
	for _, fp := range m.fps {
		if fp.TargetID != targetID {
			continue
		}
		count := 0
		for _, p := range fp.KeyPhrases {
			if want[p] {
				count++
			}
		}
		if count > 0 {
			out = append(out, domain.PhraseOverlap{SignalID: fp.SignalID, OverlapCount: count})
		}
	}
	return out, nil
}

func (m *memFingerprintStore) Create(_ context.Context, fp domain.ContentFingerprint) error {
	m.fps = append(m.fps, fp)
	return nil
}

type memSignalStore struct {
	signals map[string]domain.Signal
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{signals: make(map[string]domain.Signal)}
}

func (m *memSignalStore) Create(_ context.Context, s domain.Signal) error {
	m.signals[s.ID] = s
	return nil
}

func (m *memSignalStore) Get(_ context.Context, id string) (domain.Signal, error) {
	s, ok := m.signals[id]
	if !ok {
		return domain.Signal{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memSignalStore) Claim(_ context.Context, id string) (*domain.Signal, error) {
	s, ok := m.signals[id]
	if !ok || s.Disposition != domain.DispositionPending {
		return nil, nil
	}
	s.Disposition = domain.DispositionClaimed
	m.signals[id] = s
	return &s, nil
}

func (m *memSignalStore) UpdateDisposition(_ context.Context, id string, from, to domain.Disposition) error {
	s, ok := m.signals[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Disposition != from || !domain.CanTransition(from, to) {
		return domain.ErrValidation
	}
	s.Disposition = to
	m.signals[id] = s
	return nil
}

func (m *memSignalStore) FindPendingGroupedByURL(_ context.Context) ([]domain.SignalGroup, error) {
	byURL := make(map[string][]domain.Signal)
	for _, s := range m.signals {
		if s.Disposition == domain.DispositionPending {
			byURL[s.URL] = append(byURL[s.URL], s)
		}
	}
	var groups []domain.SignalGroup
	for url, sigs := range byURL {
		groups = append(groups, domain.SignalGroup{URL: url, Signals: sigs})
	}
	return groups, nil
}

func (m *memSignalStore) ExpireStale(_ context.Context, cutoff time.Time) (int, error) {
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

func newPipeline() (*Pipeline, *memSignalStore) {
	signals := newMemSignalStore()
	engine := dedup.New(dedup.DefaultConfig(), newMemSeenStore(), &memFingerprintStore{})
	return New(engine, signals), signals
}

// --- ingesta ---

func TestIngest_NewItemCreatesPendingSignal(t *testing.T) {
	p, signals := newPipeline()

	sig, res, err := p.Ingest(context.Background(), domain.CrawledItem{
		TargetID:  "btc",
		SourceID:  "rss-a",
		Title:     "Bitcoin surges past record high",
		Content:   "bitcoin surges past record high on heavy institutional volume",
		URL:       "https://news.example/btc",
		Direction: domain.DirectionBullish,
	})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.True(t, res.IsNew)
	assert.Equal(t, domain.DispositionPending, sig.Disposition)

	stored, err := signals.Get(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, "btc", stored.TargetID)
}

func TestIngest_ExactDuplicateDropped(t *testing.T) {
	p, signals := newPipeline()
	ctx := context.Background()

	it := domain.CrawledItem{
		TargetID: "btc", SourceID: "rss-a",
		Title: "Bitcoin surges", Content: "same exact body",
		URL: "https://news.example/btc",
	}
	_, _, err := p.Ingest(ctx, it)
	require.NoError(t, err)

	sig, res, err := p.Ingest(ctx, it)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, domain.ReasonExactHashMatch, res.Reason)
	assert.Len(t, signals.signals, 1)
}

func TestIngest_FuzzyTitleDuplicateEndToEnd(t *testing.T) {
	// Dos items del mismo target con títulos idénticos tras normalizar,
	// dentro de la ventana de 72h: el segundo cae como fuzzy_title_match.
	p, signals := newPipeline()
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, domain.CrawledItem{
		TargetID: "btc", SourceID: "rss-a",
		Title:      "Bitcoin Surges Past Record High",
		Content:    "first wire copy of the story with its own wording",
		URL:        "https://a.example/1",
		DetectedAt: time.Now(),
	})
	require.NoError(t, err)

	sig, res, err := p.Ingest(ctx, domain.CrawledItem{
		TargetID: "btc", SourceID: "rss-b",
		Title:      "  BITCOIN surges   past record HIGH ",
		Content:    "second outlet rewrote the body so hashes do not collide",
		URL:        "https://b.example/2",
		DetectedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, domain.ReasonFuzzyTitleMatch, res.Reason)
	assert.Len(t, signals.signals, 1)
}

// --- validación ---

func TestIngest_TestItemRequiresTestTarget(t *testing.T) {
	p, _ := newPipeline()

	_, _, err := p.Ingest(context.Background(), domain.CrawledItem{
		TargetID: "btc", SourceID: "rss-a", Title: "x", Content: "y", IsTest: true,
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngest_TestItemWithTestTargetOK(t *testing.T) {
	p, _ := newPipeline()

	sig, _, err := p.Ingest(context.Background(), domain.CrawledItem{
		TargetID: "test-btc", SourceID: "rss-a",
		Title: "test headline", Content: "test body content", IsTest: true,
	})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.True(t, sig.IsTest)
}

func TestIngest_MissingTargetRejected(t *testing.T) {
	p, _ := newPipeline()
	_, _, err := p.Ingest(context.Background(), domain.CrawledItem{SourceID: "rss-a"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
