package evidence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/idgen"
)

type fakeWeatherSource struct{ idx *domain.WeatherIndex }

func (f *fakeWeatherSource) LatestWeatherIndexOverlapping(_ context.Context, _ string, _, _ time.Time) (*domain.WeatherIndex, error) {
	return f.idx, nil
}

type fakeBiomassSource struct{ summary *domain.BiomassSummary }

func (f *fakeBiomassSource) LatestBiomassSummaryForPlot(_ context.Context, _ string, _ time.Time) (*domain.BiomassSummary, error) {
	return f.summary, nil
}

type fakeCIDStore struct{}

func (f *fakeCIDStore) PutJSON(_ context.Context, object any, _ map[string]string) (string, error) {
	return idgen.ContentID(object)
}

type fakeAssessmentStore struct {
	mu    sync.Mutex
	store map[string]domain.Assessment
}

func newFakeAssessmentStore() *fakeAssessmentStore {
	return &fakeAssessmentStore{store: make(map[string]domain.Assessment)}
}

func (f *fakeAssessmentStore) InsertAssessmentIfNotExists(_ context.Context, a domain.Assessment) (bool, *domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.store[a.AssessmentID]; ok {
		return false, &existing, nil
	}
	f.store[a.AssessmentID] = a
	return true, nil, nil
}

func testIndex() *domain.WeatherIndex {
	return &domain.WeatherIndex{
		PlotID: "p1", Composite: 0.5, Dominant: domain.StressDrought,
		DroughtSeverity: "moderate", SampleCount: 30, Confidence: 0.8,
	}
}

func TestAssembleCreatesOneAssessment(t *testing.T) {
	assessments := newFakeAssessmentStore()
	b := New(&fakeWeatherSource{idx: testIndex()}, &fakeBiomassSource{}, &fakeCIDStore{}, assessments, nil)

	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	req := Request{PlotID: "p1", PolicyID: "pol1", FarmerAddress: "0xabc", WindowDays: 30, Now: now}

	a, err := b.Assemble(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, a.EvidenceCID)
	assert.NotEmpty(t, a.AssessmentID)
}

func TestAssembleTwiceNoOpsViaConflict(t *testing.T) {
	assessments := newFakeAssessmentStore()
	b := New(&fakeWeatherSource{idx: testIndex()}, &fakeBiomassSource{}, &fakeCIDStore{}, assessments, nil)

	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	req := Request{PlotID: "p1", PolicyID: "pol1", FarmerAddress: "0xabc", WindowDays: 30, Now: now}

	first, err := b.Assemble(context.Background(), req)
	require.NoError(t, err)

	second, err := b.Assemble(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, first.AssessmentID, second.AssessmentID)
	assert.Equal(t, first.EvidenceCID, second.EvidenceCID)

	assert.Len(t, assessments.store, 1)
}

func TestAssembleFailsInsufficientDataWithoutWeatherIndex(t *testing.T) {
	assessments := newFakeAssessmentStore()
	b := New(&fakeWeatherSource{idx: nil}, &fakeBiomassSource{}, &fakeCIDStore{}, assessments, nil)

	_, err := b.Assemble(context.Background(), Request{PlotID: "p1", PolicyID: "pol1", WindowDays: 30, Now: time.Now()})
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestDocumentCanonicalityProducesEqualCIDs(t *testing.T) {
	idx := *testIndex()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	docA := BuildDocument("p1", "pol1", start, end, idx, nil)
	docB := BuildDocument("p1", "pol1", start, end, idx, nil)

	cidA, err := idgen.ContentID(docA)
	require.NoError(t, err)
	cidB, err := idgen.ContentID(docB)
	require.NoError(t, err)
	assert.Equal(t, cidA, cidB)
}
