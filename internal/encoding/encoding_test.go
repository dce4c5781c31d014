package encoding

import (
	"bytes"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosisguild/siphon/internal/types"
)

var (
	packTestGauge = common.HexToAddress("0x0000000000000000000000000000000000008001")
	packTestVault = common.HexToAddress("0x0000000000000000000000000000000000008002")
)

func TestPackMultiSendLayout(t *testing.T) {
	unstake, err := PackGaugeWithdraw(sdkmath.NewIntWithDecimal(5, 18))
	require.NoError(t, err)
	approve, err := PackApprove(packTestVault, sdkmath.NewInt(42))
	require.NoError(t, err)

	data, err := PackMultiSend([]types.Instruction{
		types.NewCall(packTestGauge, unstake),
		types.NewCall(packTestVault, approve),
	})
	require.NoError(t, err)

	method, err := MultiSend.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "multiSend", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	packed := args[0].([]byte)

	// each entry: operation (1) + to (20) + value (32) + dataLen (32) + data
	offset := 0
	for _, want := range []struct {
		to   common.Address
		data []byte
	}{
		{packTestGauge, unstake},
		{packTestVault, approve},
	} {
		assert.Equal(t, byte(types.OperationCall), packed[offset])
		offset++
		assert.Equal(t, want.to.Bytes(), packed[offset:offset+20])
		offset += 20
		assert.Equal(t, int64(0), new(big.Int).SetBytes(packed[offset:offset+32]).Int64())
		offset += 32
		length := int(new(big.Int).SetBytes(packed[offset : offset+32]).Int64())
		offset += 32
		require.Equal(t, len(want.data), length)
		assert.True(t, bytes.Equal(want.data, packed[offset:offset+length]))
		offset += length
	}
	assert.Equal(t, len(packed), offset)
}