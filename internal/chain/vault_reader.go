package chain

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/debt"
	"github.com/gnosisguild/siphon/internal/encoding"
)

// VaultReaderConfig locates one Maker urn.
type VaultReaderConfig struct {
	Vat     common.Address
	Spotter common.Address
	Ilk     [32]byte
	Urn     common.Address // the DSProxy holding the position
}

// VaultReader reads live CDP accounting from the vat and spotter.
type VaultReader struct {
	cfg    VaultReaderConfig
	client *Client
}

func NewVaultReader(cfg VaultReaderConfig, client *Client) (*VaultReader, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	return &VaultReader{cfg: cfg, client: client}, nil
}

// VaultState reads ink, art, rate, spot and mat in one pass. The values
// come from separate calls, close enough together that the debt adapter
// treats them as one snapshot.
func (r *VaultReader) VaultState(ctx context.Context) (debt.VaultState, error) {
	ink, art, err := r.urn(ctx)
	if err != nil {
		return debt.VaultState{}, err
	}
	rate, spot, err := r.ilk(ctx)
	if err != nil {
		return debt.VaultState{}, err
	}
	mat, err := r.mat(ctx)
	if err != nil {
		return debt.VaultState{}, err
	}
	return debt.VaultState{Ink: ink, Art: art, Rate: rate, Spot: spot, Mat: mat}, nil
}

func (r *VaultReader) urn(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	data, err := encoding.Vat.Pack("urns", r.cfg.Ilk, r.cfg.Urn)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to encode vat.urns: %w", err)
	}
	raw, err := r.client.Call(ctx, r.cfg.Vat, data)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("vat.urns read failed: %w", err)
	}
	out, err := encoding.Vat.Unpack("urns", raw)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to decode vat.urns: %w", err)
	}
	return fromBig(out[0]), fromBig(out[1]), nil
}

func (r *VaultReader) ilk(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	data, err := encoding.Vat.Pack("ilks", r.cfg.Ilk)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to encode vat.ilks: %w", err)
	}
	raw, err := r.client.Call(ctx, r.cfg.Vat, data)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("vat.ilks read failed: %w", err)
	}
	out, err := encoding.Vat.Unpack("ilks", raw)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to decode vat.ilks: %w", err)
	}
	// outputs: Art, rate, spot, line, dust
	return fromBig(out[1]), fromBig(out[2]), nil
}

func (r *VaultReader) mat(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.Spotter.Pack("ilks", r.cfg.Ilk)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode spotter.ilks: %w", err)
	}
	raw, err := r.client.Call(ctx, r.cfg.Spotter, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("spotter.ilks read failed: %w", err)
	}
	out, err := encoding.Spotter.Unpack("ilks", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode spotter.ilks: %w", err)
	}
	return fromBig(out[1]), nil
}

func fromBig(v interface{}) sdkmath.Int {
	b, ok := v.(*big.Int)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(b)
}
