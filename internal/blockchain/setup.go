// internal/blockchain/setup.go
package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fabconfig "github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/fabsdk"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
	"go.uber.org/zap"

	"shiptrack-api-server/config"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/wallet"
)

const recordHistoryTx = "RecordShipmentHistory"

type FabricSetup struct {
	Gateway  *gateway.Gateway
	Contract *gateway.Contract
	SDK      *fabsdk.FabricSDK
	Wallet   *gateway.Wallet
}

func Initialize(cfg config.FabricConfig) (*FabricSetup, error) {
	os.Setenv("DISCOVERY_AS_LOCALHOST", "true")

	fsWallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	err = wallet.PopulateWallet(fsWallet, cfg.OrgName, cfg.UserName, cfg.UserCertPath, cfg.UserKeyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to populate wallet: %w", err)
	}

	sdk, err := fabsdk.New(fabconfig.FromFile(filepath.Clean(cfg.ConnectionProfile)))
	if err != nil {
		return nil, fmt.Errorf("failed to create fabsdk instance: %w", err)
	}

	gw, err := gateway.Connect(
		gateway.WithSDK(sdk),
		gateway.WithIdentity(fsWallet, cfg.UserName),
	)
	if err != nil {
		sdk.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	network, err := gw.GetNetwork(cfg.ChannelName)
	if err != nil {
		gw.Close()
		sdk.Close()
		return nil, fmt.Errorf("failed to get network: %w", err)
	}

	return &FabricSetup{
		Gateway:  gw,
		Contract: network.GetContract(cfg.ChaincodeName),
		SDK:      sdk,
		Wallet:   fsWallet,
	}, nil
}

func (fs *FabricSetup) Close() {
	fs.Gateway.Close()
	fs.SDK.Close()
}

// Submitter is satisfied by *gateway.Contract.
type Submitter interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
}

// HistoryAnchor writes every appended history entry to the ledger so the
// shipment timeline can be audited independently of the database.
type HistoryAnchor struct {
	contract Submitter
	log      *zap.Logger
}

func NewHistoryAnchor(contract Submitter, log *zap.Logger) *HistoryAnchor {
	return &HistoryAnchor{contract: contract, log: log}
}

func (a *HistoryAnchor) Record(ctx context.Context, shipmentID string, entry models.ShipmentHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	txID, err := a.contract.SubmitTransaction(recordHistoryTx, shipmentID, string(payload))
	if err != nil {
		return fmt.Errorf("submit %s for %s: %w", recordHistoryTx, shipmentID, err)
	}
	a.log.Debug("history anchored",
		zap.String("shipment_id", shipmentID),
		zap.String("status", string(entry.Status)),
		zap.ByteString("result", txID),
	)
	return nil
}
