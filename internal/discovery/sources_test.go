package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/model"
)

func TestIsCourtDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"www.uscourts.gov", true},
		{"supremecourt.ohio.gov", true},
		{"judiciary.state.nj.us", true},
		{"www.nycourts.gov", true},
		{"courts.state.md.us", true},
		{"www.court.example.org", true},
		{"ujs.judicial.example.us", true},
		{"EXAMPLE.GOV", true},
		{"example.com", false},
		{"gov.example.com", false},
		{"court-reporters.com", false},
		{"mycourt.org", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCourtDomain(tt.host))
		})
	}
}

func TestDiscoverSources(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, userContains(`"California"`)).Return(textResponse(`{"sources": [
		{"url": "www.courts.ca.gov/find-my-court.htm (Court locator)", "source_type": "Directory"},
		{"url": "https://example.com/courts"},
		{"url": "https://down.courts.example.gov"},
		{"url": "ftp://bad.example.gov"},
		{"url": "https://www.courts.ca.gov/find-my-court.htm"}
	]}`), nil).Once()

	prober := &mockProber{results: map[string]fetcher.Result{
		"https://down.courts.example.gov": {Failure: fetcher.FailureDNS, Err: errors.New("no such host")},
	}}
	reg := &mockRegistrar{created: true}
	usage := &mockUsage{}

	f := NewSourceFinder(newTestEngine(client, usage), prober, reg)
	got, err := f.DiscoverSources(context.Background(), model.Jurisdiction{ID: 5, Name: "California", Type: model.JurisdictionState})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, SourceOutcome{URL: "https://www.courts.ca.gov/find-my-court.htm", SourceType: "directory", Status: SourceRegistered}, got[0])
	assert.Equal(t, SourceNotCourt, got[1].Status)
	assert.Equal(t, SourceUnreachable, got[2].Status)
	assert.Equal(t, "dns", got[2].Detail)
	assert.Equal(t, SourceInvalid, got[3].Status)

	require.Len(t, reg.calls, 1)
	assert.Equal(t, registerCall{5, "https://www.courts.ca.gov/find-my-court.htm", "directory"}, reg.calls[0])
	assert.Equal(t, 1, CountStatus(got, SourceRegistered))

	rows := usage.recorded()
	require.Len(t, rows, 1)
	assert.Equal(t, EndpointSources, rows[0].Endpoint)
}

func TestDiscoverSources_ExistingSource(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`["https://www.uscourts.gov/court-locator"]`), nil).Once()

	reg := &mockRegistrar{created: false}
	f := NewSourceFinder(newTestEngine(client, nil), &mockProber{}, reg)

	got, err := f.DiscoverSources(context.Background(), model.Jurisdiction{ID: 1, Name: "United States", Type: model.JurisdictionFederal})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, SourceExisting, got[0].Status)
	assert.Equal(t, "directory", reg.calls[0].SourceType)
}

func TestDiscoverSources_CallFails(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("unauthorized")).Once()

	reg := &mockRegistrar{}
	f := NewSourceFinder(newTestEngine(client, nil), &mockProber{}, reg)

	_, err := f.DiscoverSources(context.Background(), model.Jurisdiction{ID: 1, Name: "United States"})
	require.Error(t, err)
	assert.Empty(t, reg.calls)
}

func TestDiscoverSources_RegisterFailureSkipsOnlyThatSource(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{"sources": [
		{"url": "https://a.courts.example.gov"},
		{"url": "https://b.courts.example.gov"}
	]}`), nil).Once()

	reg := &mockRegistrar{created: true, errs: map[string]error{
		"https://a.courts.example.gov": errors.New("connection reset"),
	}}
	f := NewSourceFinder(newTestEngine(client, nil), &mockProber{}, reg)

	got, err := f.DiscoverSources(context.Background(), model.Jurisdiction{ID: 9, Name: "Example State", Type: model.JurisdictionState})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, SourceError, got[0].Status)
	assert.Equal(t, "connection reset", got[0].Detail)
	assert.Equal(t, SourceRegistered, got[1].Status)
	assert.Equal(t, "https://b.courts.example.gov", got[1].URL)
	require.Len(t, reg.calls, 2)
}
