package control

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vietddude/blessbot/internal/infra/chain/evm"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

// OpenPipeline dials the node and prepares the funder's transfer pipeline.
func OpenPipeline(
	ctx context.Context,
	cfg evm.Config,
	privateKey string,
	journal storage.TransferJournal,
) (*evm.Pipeline, *ethclient.Client, error) {
	if privateKey == "" {
		return nil, nil, fmt.Errorf("FUNDER_PRIVATE_KEY is not set")
	}
	key, err := evm.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	client, err := evm.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := evm.NewPipeline(ctx, client, key, journal, cfg)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to init transfer pipeline: %w", err)
	}
	return pipeline, client, nil
}
