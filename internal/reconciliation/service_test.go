package reconciliation

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bobbyswhip/x402c/internal/alert"
	"github.com/bobbyswhip/x402c/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStatusReader struct {
	statuses map[common.Hash]model.RequestStatus
	err      error
}

func (m *mockStatusReader) RequestStatus(_ context.Context, id common.Hash) (model.RequestStatus, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.statuses[id], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcile_AllMatch(t *testing.T) {
	id1 := common.HexToHash("0x01")
	id2 := common.HexToHash("0x02")

	reader := &mockStatusReader{statuses: map[common.Hash]model.RequestStatus{
		id1: model.RequestPending,
		id2: model.RequestFulfilled,
	}}

	svc := NewService(reader, nil, testLogger())
	result, err := svc.Reconcile(context.Background(), []model.RecentRequest{
		{ID: id1, Status: model.RequestPending},
		{ID: id2, Status: model.RequestFulfilled},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 0, result.Mismatched)
}

func TestReconcile_DetectsMismatch(t *testing.T) {
	id1 := common.HexToHash("0x01")

	reader := &mockStatusReader{statuses: map[common.Hash]model.RequestStatus{
		id1: model.RequestFulfilled,
	}}

	svc := NewService(reader, nil, testLogger())
	result, err := svc.Reconcile(context.Background(), []model.RecentRequest{
		{ID: id1, Status: model.RequestPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, result.Mismatched)
	require.Len(t, result.Snapshots, 1)
	assert.False(t, result.Snapshots[0].IsMatch)
}

func TestReconcile_SkipsTerminalLocalStatus(t *testing.T) {
	id1 := common.HexToHash("0x01")

	reader := &mockStatusReader{statuses: map[common.Hash]model.RequestStatus{
		id1: model.RequestPending, // disagreement, but local is already terminal so skipped
	}}

	svc := NewService(reader, nil, testLogger())
	result, err := svc.Reconcile(context.Background(), []model.RecentRequest{
		{ID: id1, Status: model.RequestFulfilled},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total, "terminal local status should never be re-checked")
}

func TestReconcile_CountsErrorsSeparately(t *testing.T) {
	id1 := common.HexToHash("0x01")
	reader := &mockStatusReader{err: assertErr{}}

	svc := NewService(reader, nil, testLogger())
	result, err := svc.Reconcile(context.Background(), []model.RecentRequest{
		{ID: id1, Status: model.RequestPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 0, result.Total)
}

func TestReconcile_SendsAlertOnMismatch(t *testing.T) {
	id1 := common.HexToHash("0x01")
	reader := &mockStatusReader{statuses: map[common.Hash]model.RequestStatus{
		id1: model.RequestFulfilled,
	}}

	sent := &recordingAlerter{}
	svc := NewService(reader, sent, testLogger())
	_, err := svc.Reconcile(context.Background(), []model.RecentRequest{
		{ID: id1, Status: model.RequestPending},
	})
	require.NoError(t, err)
	require.Len(t, sent.alerts, 1)
	assert.Equal(t, alert.AlertTypeReconcileMismatch, sent.alerts[0].Type)
}

type recordingAlerter struct {
	alerts []alert.Alert
}

func (r *recordingAlerter) Send(_ context.Context, a alert.Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "lookup failed" }
