package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultsim/vaultd/internal/resolver"
	"github.com/vaultsim/vaultd/internal/service"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/internal/validation"
)

type LifecycleService interface {
	CreateTransaction(ctx context.Context, input service.CreateTransactionInput) (*storage.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Freeze(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Unfreeze(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Drop(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	EstimateFee(ctx context.Context, assetID string) (*service.FeeEstimate, error)
	ValidateAddress(ctx context.Context, assetID, address string) (bool, error)
}

type ResolverService interface {
	VisibleTransactions(ctx context.Context, workspaceID uuid.UUID, filter storage.TransactionFilter) ([]resolver.VisibleTransaction, error)
	GetVisible(ctx context.Context, workspaceID uuid.UUID, rawID string) (*resolver.VisibleTransaction, error)
}

type AccountsService interface {
	CreateVault(ctx context.Context, workspaceID uuid.UUID, name, customerRefID string, autoFuel, hidden bool) (*storage.VaultAccount, error)
	GetVault(ctx context.Context, workspaceID, vaultID uuid.UUID) (*storage.VaultAccount, error)
	ListVaults(ctx context.Context, workspaceID uuid.UUID, includeHidden bool) ([]storage.VaultAccount, error)
	CreateWallet(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) (*storage.Wallet, *storage.Address, error)
	NewDepositAddress(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) (*storage.Address, error)
	Balances(ctx context.Context, workspaceID, vaultID uuid.UUID) ([]storage.Wallet, error)
	Addresses(ctx context.Context, workspaceID, vaultID uuid.UUID, assetID string) ([]storage.Address, error)
}

// Provider serves the external API surface: transactions, vaults, wallets,
// fee estimates, address validation.
type Provider struct {
	Lifecycle LifecycleService
	Resolver  ResolverService
	Accounts  AccountsService
	Logger    *slog.Logger
}

func NewProvider(lifecycle LifecycleService, res ResolverService, accounts AccountsService, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{Lifecycle: lifecycle, Resolver: res, Accounts: accounts, Logger: logger}
}

func (h *Provider) Register(r gin.IRoutes) {
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
	r.POST("/transactions/:id/cancel", h.CancelTransaction)
	r.POST("/transactions/:id/freeze", h.FreezeTransaction)
	r.POST("/transactions/:id/unfreeze", h.UnfreezeTransaction)
	r.POST("/transactions/:id/drop", h.DropTransaction)
	r.GET("/transactions/estimate_fee", h.EstimateFee)
	r.GET("/assets/:id/validate_address", h.ValidateAddress)
	r.POST("/vault_accounts", h.CreateVault)
	r.GET("/vault_accounts", h.ListVaults)
	r.GET("/vault_accounts/:vaultId", h.GetVault)
	r.GET("/vault_accounts/:vaultId/balances", h.VaultBalances)
	r.POST("/vault_accounts/:vaultId/wallets/:assetId", h.CreateWallet)
	r.GET("/vault_accounts/:vaultId/wallets/:assetId/addresses", h.ListAddresses)
	r.POST("/vault_accounts/:vaultId/wallets/:assetId/addresses", h.NewAddress)
}

type transferPeer struct {
	Type    string `json:"type"`
	VaultID string `json:"vault_id,omitempty"`
	Address string `json:"address,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

type createTransactionRequest struct {
	AssetID            string       `json:"asset_id"`
	Source             transferPeer `json:"source"`
	Destination        transferPeer `json:"destination"`
	Amount             string       `json:"amount"`
	TreatAsGrossAmount bool         `json:"treat_as_gross_amount"`
	ExternalTxID       string       `json:"external_tx_id"`
	CustomerRefID      string       `json:"customer_ref_id"`
	Operation          string       `json:"operation"`
	Note               string       `json:"note"`
}

type transactionItem struct {
	ID             string  `json:"id"`
	AssetID        string  `json:"asset_id"`
	State          string  `json:"status"`
	SubStatus      string  `json:"sub_status,omitempty"`
	SourceType     string  `json:"source_type"`
	SourceAddress  string  `json:"source_address,omitempty"`
	DestType       string  `json:"destination_type"`
	DestAddress    string  `json:"destination_address,omitempty"`
	DestTag        string  `json:"destination_tag,omitempty"`
	Amount         string  `json:"amount"`
	SettledAmount  string  `json:"settled_amount"`
	NetworkFee     string  `json:"network_fee"`
	FeeCurrency    string  `json:"fee_currency"`
	TxHash         string  `json:"tx_hash,omitempty"`
	Confirmations  int     `json:"confirmations"`
	Frozen         bool    `json:"frozen"`
	FailureReason  string  `json:"failure_reason,omitempty"`
	ReplacedByTxID *string `json:"replaced_by_tx_id,omitempty"`
	ExternalTxID   string  `json:"external_tx_id,omitempty"`
	Perspective    string  `json:"perspective,omitempty"`
	Counterparty   string  `json:"counterparty_address,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func transactionToItem(t storage.Transaction) transactionItem {
	var replacedBy *string
	if t.ReplacedByTxID != nil {
		val := t.ReplacedByTxID.String()
		replacedBy = &val
	}
	return transactionItem{
		ID:             t.ID.String(),
		AssetID:        t.AssetID,
		State:          string(t.State),
		SubStatus:      t.SubStatus,
		SourceType:     t.SourceType,
		SourceAddress:  t.SourceAddress,
		DestType:       t.DestType,
		DestAddress:    t.DestAddress,
		DestTag:        t.DestTag,
		Amount:         t.Amount.String(),
		SettledAmount:  t.SettledAmount.String(),
		NetworkFee:     t.NetworkFee.String(),
		FeeCurrency:    t.FeeCurrency,
		TxHash:         t.TxHash,
		Confirmations:  t.Confirmations,
		Frozen:         t.Frozen,
		FailureReason:  t.FailureReason,
		ReplacedByTxID: replacedBy,
		ExternalTxID:   t.ExternalTxID,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func visibleToItem(v resolver.VisibleTransaction) transactionItem {
	item := transactionToItem(v.Transaction)
	item.Perspective = string(v.Perspective)
	item.Counterparty = v.CounterpartyAddress
	return item
}

func (h *Provider) CreateTransaction(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}

	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	errs := validation.ValidateTransferRequest(
		req.AssetID,
		req.Source.Type, req.Source.VaultID,
		req.Destination.Type, req.Destination.VaultID,
		req.Destination.Address,
		req.Amount,
	)
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	amount, _ := decimal.NewFromString(strings.TrimSpace(req.Amount))
	input := service.CreateTransactionInput{
		WorkspaceID:   wsID,
		AssetID:       strings.ToUpper(strings.TrimSpace(req.AssetID)),
		SourceType:    req.Source.Type,
		SourceAddress: req.Source.Address,
		DestType:      req.Destination.Type,
		DestAddress:   req.Destination.Address,
		DestTag:       req.Destination.Tag,
		Amount:        amount,
		TreatAsGross:  req.TreatAsGrossAmount,
		ExternalTxID:  req.ExternalTxID,
		CustomerRefID: req.CustomerRefID,
		Operation:     req.Operation,
	}
	if vaultID, err := parseOptionalUUID(req.Source.VaultID); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid source vault_id", nil)
		return
	} else {
		input.SourceVaultID = vaultID
	}
	if vaultID, err := parseOptionalUUID(req.Destination.VaultID); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid destination vault_id", nil)
		return
	} else {
		input.DestVaultID = vaultID
	}

	t, err := h.Lifecycle.CreateTransaction(c.Request.Context(), input)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": t.ID.String(), "status": string(t.State)})
}

func (h *Provider) ListTransactions(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}

	filter := storage.TransactionFilter{
		AssetID: strings.ToUpper(strings.TrimSpace(c.Query("asset_id"))),
		State:   txstate.State(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}
	if limitStr := strings.TrimSpace(c.Query("limit")); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit", nil)
			return
		}
		filter.Limit = n
	}

	txs, err := h.Resolver.VisibleTransactions(c.Request.Context(), wsID, filter)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}

	items := make([]transactionItem, 0, len(txs))
	for _, t := range txs {
		items = append(items, visibleToItem(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

func (h *Provider) GetTransaction(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}

	visible, err := h.Resolver.GetVisible(c.Request.Context(), wsID, c.Param("id"))
	if err != nil {
		if _, _, parseErr := resolver.ParseCompositeID(c.Param("id")); parseErr != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed transaction id", nil)
			return
		}
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, visibleToItem(*visible))
}

// resolveOwned maps a raw id parameter to a transaction the workspace can
// see, enforcing tenancy before any mutation.
func (h *Provider) resolveOwned(c *gin.Context, wsID uuid.UUID) (uuid.UUID, bool) {
	visible, err := h.Resolver.GetVisible(c.Request.Context(), wsID, c.Param("id"))
	if err != nil {
		if _, _, parseErr := resolver.ParseCompositeID(c.Param("id")); parseErr != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed transaction id", nil)
			return uuid.Nil, false
		}
		writeServiceError(c, h.Logger, err)
		return uuid.Nil, false
	}
	return visible.ID, true
}

func (h *Provider) CancelTransaction(c *gin.Context) {
	h.mutateTransaction(c, h.Lifecycle.Cancel)
}

func (h *Provider) FreezeTransaction(c *gin.Context) {
	h.mutateTransaction(c, h.Lifecycle.Freeze)
}

func (h *Provider) UnfreezeTransaction(c *gin.Context) {
	h.mutateTransaction(c, h.Lifecycle.Unfreeze)
}

func (h *Provider) DropTransaction(c *gin.Context) {
	h.mutateTransaction(c, h.Lifecycle.Drop)
}

func (h *Provider) mutateTransaction(c *gin.Context, op func(context.Context, uuid.UUID) (*storage.Transaction, error)) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	txID, ok := h.resolveOwned(c, wsID)
	if !ok {
		return
	}

	t, err := op(c.Request.Context(), txID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, transactionToItem(*t))
}

func (h *Provider) EstimateFee(c *gin.Context) {
	assetID := strings.ToUpper(strings.TrimSpace(c.Query("asset_id")))
	if assetID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "asset_id is required", nil)
		return
	}
	est, err := h.Lifecycle.EstimateFee(c.Request.Context(), assetID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"low":       gin.H{"network_fee": est.Low.String()},
		"medium":    gin.H{"network_fee": est.Medium.String()},
		"high":      gin.H{"network_fee": est.High.String()},
		"fee_asset": est.Asset,
	})
}

func (h *Provider) ValidateAddress(c *gin.Context) {
	assetID := strings.ToUpper(strings.TrimSpace(c.Param("id")))
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "address is required", nil)
		return
	}
	valid, err := h.Lifecycle.ValidateAddress(c.Request.Context(), assetID, address)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_valid": valid})
}

type createVaultRequest struct {
	Name          string `json:"name"`
	CustomerRefID string `json:"customer_ref_id"`
	AutoFuel      bool   `json:"auto_fuel"`
	Hidden        bool   `json:"hidden"`
}

type vaultItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CustomerRefID string `json:"customer_ref_id,omitempty"`
	AutoFuel      bool   `json:"auto_fuel"`
	Hidden        bool   `json:"hidden"`
	CreatedAt     string `json:"created_at"`
}

func vaultToItem(v storage.VaultAccount) vaultItem {
	return vaultItem{
		ID:            v.ID.String(),
		Name:          v.Name,
		CustomerRefID: v.CustomerRefID,
		AutoFuel:      v.AutoFuel,
		Hidden:        v.Hidden,
		CreatedAt:     v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Provider) CreateVault(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}

	var req createVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	v, err := h.Accounts.CreateVault(c.Request.Context(), wsID, req.Name, req.CustomerRefID, req.AutoFuel, req.Hidden)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, vaultToItem(*v))
}

func (h *Provider) ListVaults(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}

	vaults, err := h.Accounts.ListVaults(c.Request.Context(), wsID, c.Query("include_hidden") == "true")
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]vaultItem, 0, len(vaults))
	for _, v := range vaults {
		items = append(items, vaultToItem(v))
	}
	c.JSON(http.StatusOK, gin.H{"vault_accounts": items})
}

func (h *Provider) GetVault(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	vaultID, err := uuid.Parse(c.Param("vaultId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid vault id", nil)
		return
	}

	v, err := h.Accounts.GetVault(c.Request.Context(), wsID, vaultID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, vaultToItem(*v))
}

type walletItem struct {
	ID          string `json:"id"`
	AssetID     string `json:"asset_id"`
	Balance     string `json:"balance"`
	Pending     string `json:"pending"`
	Locked      string `json:"locked"`
	Available   string `json:"available"`
	BlockHeight int64  `json:"block_height,omitempty"`
}

func walletToItem(w storage.Wallet) walletItem {
	return walletItem{
		ID:          w.ID.String(),
		AssetID:     w.AssetID,
		Balance:     w.Balance.String(),
		Pending:     w.Pending.String(),
		Locked:      w.Locked.String(),
		Available:   w.Available().String(),
		BlockHeight: w.BlockHeight,
	}
}

func (h *Provider) VaultBalances(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	vaultID, err := uuid.Parse(c.Param("vaultId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid vault id", nil)
		return
	}

	wallets, err := h.Accounts.Balances(c.Request.Context(), wsID, vaultID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]walletItem, 0, len(wallets))
	for _, w := range wallets {
		items = append(items, walletToItem(w))
	}
	c.JSON(http.StatusOK, gin.H{"balances": items})
}

type addressItem struct {
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
	Format  string `json:"format"`
}

func (h *Provider) CreateWallet(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	vaultID, err := uuid.Parse(c.Param("vaultId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid vault id", nil)
		return
	}

	wallet, addr, err := h.Accounts.CreateWallet(c.Request.Context(), wsID, vaultID, strings.ToUpper(c.Param("assetId")))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"wallet":  walletToItem(*wallet),
		"address": addressItem{Address: addr.Address, Tag: addr.Tag, Format: addr.Format},
	})
}

func (h *Provider) NewAddress(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	vaultID, err := uuid.Parse(c.Param("vaultId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid vault id", nil)
		return
	}

	addr, err := h.Accounts.NewDepositAddress(c.Request.Context(), wsID, vaultID, strings.ToUpper(c.Param("assetId")))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, addressItem{Address: addr.Address, Tag: addr.Tag, Format: addr.Format})
}

func (h *Provider) ListAddresses(c *gin.Context) {
	wsID, ok := workspaceIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing workspace", nil)
		return
	}
	vaultID, err := uuid.Parse(c.Param("vaultId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid vault id", nil)
		return
	}

	addrs, err := h.Accounts.Addresses(c.Request.Context(), wsID, vaultID, strings.ToUpper(c.Param("assetId")))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]addressItem, 0, len(addrs))
	for _, a := range addrs {
		items = append(items, addressItem{Address: a.Address, Tag: a.Tag, Format: a.Format})
	}
	c.JSON(http.StatusOK, gin.H{"addresses": items})
}

func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
