package chainadapter

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrimHexPrefix(t *testing.T) {
	assert.Equal(t, "abcd", trimHexPrefix("0xabcd"))
	assert.Equal(t, "abcd", trimHexPrefix("abcd"))
	assert.Equal(t, "a", trimHexPrefix("a"))
	assert.Equal(t, "", trimHexPrefix(""))
}

func TestFromAddress_ZeroWithoutKey(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, common.Address{}, a.FromAddress())
}

func TestFetchLogs_RejectsInvertedRange(t *testing.T) {
	a := &Adapter{logger: testLogger()}
	_, err := a.FetchLogs(context.Background(), common.Address{}, nil, 100, 50)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestFetchLogs_RejectsOversizedRange(t *testing.T) {
	a := &Adapter{logger: testLogger()}
	_, err := a.FetchLogs(context.Background(), common.Address{}, nil, 0, 5000)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestReadCall_RejectsBadPack(t *testing.T) {
	a := &Adapter{logger: testLogger()}
	_, err := a.ReadCall(context.Background(), common.Address{}, hubABI, "getEndpoint", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}
