package launcher

import (
	"context"
	"errors"
	"testing"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls []models.ScanRequest
	err   error
}

func (f *fakeBackend) LaunchScan(ctx context.Context, req models.ScanRequest) (*api.LaunchResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &api.LaunchResponse{Status: "started", Message: "Scan started for " + req.Target}, nil
}

func TestEmptyTargetRejectedWithoutNetworkCall(t *testing.T) {
	b := &fakeBackend{}
	l := New(b)
	for _, target := range []string{"", "   "} {
		l.Target = target
		assert.False(t, l.CanSubmit())
		err := l.Submit(context.Background())
		assert.ErrorIs(t, err, ErrTargetRequired)
	}
	assert.Empty(t, b.calls)
}

func TestSuccessfulSubmitClearsFieldsAndConfirms(t *testing.T) {
	b := &fakeBackend{}
	l := New(b)
	l.Target = " example.com "
	l.Type = models.ScanCustom
	l.Templates = "cve, exposure ,,"

	require.NoError(t, l.Submit(context.Background()))
	require.Len(t, b.calls, 1)
	assert.Equal(t, models.ScanRequest{Target: "example.com", Type: models.ScanCustom, Templates: "cve,exposure"}, b.calls[0])
	assert.Equal(t, "Scan started for example.com", l.Confirmation)
	assert.Empty(t, l.Target)
	assert.Empty(t, l.Templates)
	assert.Empty(t, l.Err)
}

func TestFailedSubmitKeepsValues(t *testing.T) {
	b := &fakeBackend{err: &api.TransportError{Op: "launch_scan", Err: errors.New("connection refused")}}
	l := New(b)
	l.Target = "example.com"
	l.Type = models.ScanFull
	l.Templates = "dns"

	require.Error(t, l.Submit(context.Background()))
	assert.Equal(t, "Failed to connect to backend. Is it running?", l.Err)
	assert.Empty(t, l.Confirmation)
	assert.Equal(t, "example.com", l.Target)
	assert.Equal(t, models.ScanFull, l.Type)
	assert.Equal(t, "dns", l.Templates)

	// Retry without re-entering anything.
	b.err = nil
	require.NoError(t, l.Submit(context.Background()))
	assert.Len(t, b.calls, 2)
	assert.Equal(t, b.calls[0], b.calls[1])
}

func TestPrefillSelectsCustomProfile(t *testing.T) {
	l := New(&fakeBackend{})
	l.Err = "old"
	l.Prefill(" http/cves/2021/CVE-2021-1234.yaml ")
	assert.Equal(t, models.ScanCustom, l.Type)
	assert.Equal(t, "http/cves/2021/CVE-2021-1234.yaml", l.Templates)
	assert.Empty(t, l.Err)
}

func TestNormalizeTemplates(t *testing.T) {
	assert.Equal(t, "", NormalizeTemplates(" , ,"))
	assert.Equal(t, "a,b", NormalizeTemplates("a , b"))
}
