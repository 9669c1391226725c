package identity

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestStaticResolverResolvesKnownAddress(t *testing.T) {
	addr := common.HexToAddress("0x1")
	r := NewStaticResolver(map[common.Address]string{addr: "alchemy-agent"})

	name, ok := r.Resolve(context.Background(), addr)
	assert.True(t, ok)
	assert.Equal(t, "alchemy-agent", name)
}

func TestStaticResolverMissesUnknownAddress(t *testing.T) {
	r := NewStaticResolver(nil)

	_, ok := r.Resolve(context.Background(), common.HexToAddress("0x2"))
	assert.False(t, ok)
}

func TestStaticResolverPutAddsEntryAtRuntime(t *testing.T) {
	r := NewStaticResolver(nil)
	addr := common.HexToAddress("0x3")

	_, ok := r.Resolve(context.Background(), addr)
	assert.False(t, ok)

	r.Put(addr, "opensea-agent")
	name, ok := r.Resolve(context.Background(), addr)
	assert.True(t, ok)
	assert.Equal(t, "opensea-agent", name)
}

func TestStaticResolverConstructorCopiesInputMap(t *testing.T) {
	addr := common.HexToAddress("0x4")
	src := map[common.Address]string{addr: "original"}
	r := NewStaticResolver(src)

	src[addr] = "mutated-after-construction"

	name, ok := r.Resolve(context.Background(), addr)
	assert.True(t, ok)
	assert.Equal(t, "original", name)
}
