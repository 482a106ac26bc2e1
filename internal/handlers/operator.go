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

	"github.com/vaultsim/vaultd/internal/addrgen"
	"github.com/vaultsim/vaultd/internal/service"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/internal/validation"
	"github.com/vaultsim/vaultd/libs/apikey"
)

type OperatorStore interface {
	CreateAsset(ctx context.Context, a *storage.Asset) error
	GetAsset(ctx context.Context, id string) (*storage.Asset, error)
	ListAssets(ctx context.Context, activeOnly bool) ([]storage.Asset, error)
	UpdateAsset(ctx context.Context, a *storage.Asset) error
	DeactivateAsset(ctx context.Context, id string) error

	CreateWorkspace(ctx context.Context, name string) (*storage.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]storage.Workspace, error)
	InsertAPIKey(ctx context.Context, workspaceID uuid.UUID, prefix, keyHash string) (*storage.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]storage.Transaction, error)

	WalletForAddress(ctx context.Context, address, tag string) (*storage.Wallet, error)
	SetWalletLocked(ctx context.Context, walletID uuid.UUID, locked decimal.Decimal) error

	GetBoolSetting(ctx context.Context, name string) (bool, error)
	SetBoolSetting(ctx context.Context, name string, value bool) error
}

type OperatorLifecycle interface {
	CreateTransaction(ctx context.Context, input service.CreateTransactionInput) (*storage.Transaction, error)
	Approve(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Sign(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Broadcast(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Confirm(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Complete(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Fail(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Reject(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
	TimeOut(ctx context.Context, id uuid.UUID) (*storage.Transaction, error)
}

// Operator serves the back-office surface: asset and workspace
// administration, raw transaction access, manual state transitions,
// scheduler settings, and simulated deposits.
type Operator struct {
	Store     OperatorStore
	Lifecycle OperatorLifecycle
	Env       string
	Logger    *slog.Logger
}

func NewOperator(store OperatorStore, lifecycle OperatorLifecycle, env string, logger *slog.Logger) *Operator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operator{Store: store, Lifecycle: lifecycle, Env: env, Logger: logger}
}

func (h *Operator) Register(r gin.IRoutes) {
	r.POST("/assets", h.CreateAsset)
	r.GET("/assets", h.ListAssets)
	r.GET("/assets/:id", h.GetAsset)
	r.PUT("/assets/:id", h.UpdateAsset)
	r.DELETE("/assets/:id", h.DeactivateAsset)

	r.POST("/workspaces", h.CreateWorkspace)
	r.GET("/workspaces", h.ListWorkspaces)
	r.POST("/workspaces/:id/api_keys", h.IssueAPIKey)
	r.DELETE("/api_keys/:id", h.RevokeAPIKey)

	r.GET("/transactions", h.ListTransactions)
	r.POST("/transactions/:id/:action", h.TransitionTransaction)

	r.GET("/settings/autotransition", h.GetAutoTransition)
	r.PUT("/settings/autotransition", h.SetAutoTransition)

	r.PUT("/wallets/:id/locked", h.SetWalletLocked)
	r.POST("/deposits", h.SimulateDeposit)
}

type assetRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	AddressingStyle string `json:"addressing_style"`
	ContractAddress string `json:"contract_address"`
	NativeAssetID   string `json:"native_asset_id"`
	BaseFee         string `json:"base_fee"`
	FeeAssetID      string `json:"fee_asset_id"`
}

type assetItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	AddressingStyle string `json:"addressing_style"`
	ContractAddress string `json:"contract_address,omitempty"`
	NativeAssetID   string `json:"native_asset_id,omitempty"`
	BaseFee         string `json:"base_fee"`
	FeeAssetID      string `json:"fee_asset_id,omitempty"`
	Active          bool   `json:"active"`
}

func assetToItem(a storage.Asset) assetItem {
	return assetItem{
		ID:              a.ID,
		Name:            a.Name,
		Symbol:          a.Symbol,
		Decimals:        a.Decimals,
		AddressingStyle: string(a.AddressingStyle),
		ContractAddress: a.ContractAddress,
		NativeAssetID:   a.NativeAssetID,
		BaseFee:         a.BaseFee.String(),
		FeeAssetID:      a.FeeAssetID,
		Active:          a.Active,
	}
}

func (h *Operator) assetFromRequest(c *gin.Context, existing *storage.Asset) (*storage.Asset, bool) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return nil, false
	}
	if existing != nil {
		req.ID = existing.ID
	}

	errs := validation.ValidateAssetRequest(req.ID, req.Name, req.AddressingStyle, req.BaseFee, req.Decimals)
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return nil, false
	}

	style, err := addrgen.ParseStyle(req.AddressingStyle)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown addressing style", nil)
		return nil, false
	}
	baseFee, err := decimal.NewFromString(strings.TrimSpace(req.BaseFee))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid base fee", nil)
		return nil, false
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSpace(req.ID))
	}
	a := &storage.Asset{
		ID:              strings.ToUpper(strings.TrimSpace(req.ID)),
		Name:            strings.TrimSpace(req.Name),
		Symbol:          symbol,
		Decimals:        req.Decimals,
		AddressingStyle: style,
		ContractAddress: strings.TrimSpace(req.ContractAddress),
		NativeAssetID:   strings.ToUpper(strings.TrimSpace(req.NativeAssetID)),
		BaseFee:         baseFee,
		FeeAssetID:      strings.ToUpper(strings.TrimSpace(req.FeeAssetID)),
		Active:          true,
	}
	if existing != nil {
		a.Active = existing.Active
	}
	return a, true
}

func (h *Operator) CreateAsset(c *gin.Context) {
	a, ok := h.assetFromRequest(c, nil)
	if !ok {
		return
	}
	if err := h.Store.CreateAsset(c.Request.Context(), a); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, assetToItem(*a))
}

func (h *Operator) ListAssets(c *gin.Context) {
	assets, err := h.Store.ListAssets(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]assetItem, 0, len(assets))
	for _, a := range assets {
		items = append(items, assetToItem(a))
	}
	c.JSON(http.StatusOK, gin.H{"assets": items})
}

func (h *Operator) GetAsset(c *gin.Context) {
	a, err := h.Store.GetAsset(c.Request.Context(), strings.ToUpper(c.Param("id")))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, assetToItem(*a))
}

func (h *Operator) UpdateAsset(c *gin.Context) {
	existing, err := h.Store.GetAsset(c.Request.Context(), strings.ToUpper(c.Param("id")))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	a, ok := h.assetFromRequest(c, existing)
	if !ok {
		return
	}
	if err := h.Store.UpdateAsset(c.Request.Context(), a); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, assetToItem(*a))
}

func (h *Operator) DeactivateAsset(c *gin.Context) {
	if err := h.Store.DeactivateAsset(c.Request.Context(), strings.ToUpper(c.Param("id"))); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (h *Operator) CreateWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
		return
	}
	ws, err := h.Store.CreateWorkspace(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ws.ID.String(), "name": ws.Name})
}

func (h *Operator) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.Store.ListWorkspaces(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]gin.H, 0, len(workspaces))
	for _, ws := range workspaces {
		items = append(items, gin.H{
			"id":         ws.ID.String(),
			"name":       ws.Name,
			"created_at": ws.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": items})
}

// IssueAPIKey mints a workspace API key. The full key is returned exactly
// once; only the hash is persisted.
func (h *Operator) IssueAPIKey(c *gin.Context) {
	wsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid workspace id", nil)
		return
	}

	fullKey, prefix, hash, err := apikey.Generate(h.Env)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	record, err := h.Store.InsertAPIKey(c.Request.Context(), wsID, prefix, hash)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      record.ID.String(),
		"prefix":  record.Prefix,
		"api_key": fullKey,
	})
}

func (h *Operator) RevokeAPIKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid api key id", nil)
		return
	}
	if err := h.Store.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Operator) ListTransactions(c *gin.Context) {
	filter := storage.TransactionFilter{
		AssetID: strings.ToUpper(strings.TrimSpace(c.Query("asset_id"))),
		State:   txstate.State(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		TxHash:  strings.TrimSpace(c.Query("tx_hash")),
	}
	if raw := strings.TrimSpace(c.Query("workspace_id")); raw != "" {
		wsID, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid workspace id", nil)
			return
		}
		filter.WorkspaceID = wsID
	}
	for query, dst := range map[string]**time.Time{"before": &filter.Before, "after": &filter.After} {
		raw := strings.TrimSpace(c.Query(query))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+query+" timestamp", nil)
			return
		}
		*dst = &ts
	}
	for query, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := strings.TrimSpace(c.Query(query))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+query, nil)
			return
		}
		*dst = n
	}

	txs, err := h.Store.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	items := make([]transactionItem, 0, len(txs))
	for _, t := range txs {
		items = append(items, transactionToItem(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

// TransitionTransaction applies a named manual transition. Unknown actions
// are a 400; transitions the state machine forbids come back as 409.
func (h *Operator) TransitionTransaction(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid transaction id", nil)
		return
	}

	var op func(context.Context, uuid.UUID) (*storage.Transaction, error)
	switch strings.ToLower(c.Param("action")) {
	case "approve":
		op = h.Lifecycle.Approve
	case "sign":
		op = h.Lifecycle.Sign
	case "broadcast":
		op = h.Lifecycle.Broadcast
	case "confirm":
		op = h.Lifecycle.Confirm
	case "complete":
		op = h.Lifecycle.Complete
	case "fail":
		op = h.Lifecycle.Fail
	case "reject":
		op = h.Lifecycle.Reject
	case "cancel":
		op = h.Lifecycle.Cancel
	case "timeout":
		op = h.Lifecycle.TimeOut
	default:
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown action", nil)
		return
	}

	t, err := op(c.Request.Context(), txID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, transactionToItem(*t))
}

func (h *Operator) GetAutoTransition(c *gin.Context) {
	enabled, err := h.Store.GetBoolSetting(c.Request.Context(), storage.SettingAutoAdvance)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

type autoTransitionRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Operator) SetAutoTransition(c *gin.Context) {
	var req autoTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "enabled is required", nil)
		return
	}
	if err := h.Store.SetBoolSetting(c.Request.Context(), storage.SettingAutoAdvance, *req.Enabled); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

type setLockedRequest struct {
	Locked string `json:"locked"`
}

// SetWalletLocked administratively freezes part of a wallet's balance,
// shrinking what transfers may reserve.
func (h *Operator) SetWalletLocked(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid wallet id", nil)
		return
	}
	var req setLockedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}
	locked, err := decimal.NewFromString(strings.TrimSpace(req.Locked))
	if err != nil || locked.IsNegative() {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "locked must be a non-negative decimal", nil)
		return
	}

	if err := h.Store.SetWalletLocked(c.Request.Context(), walletID, locked); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": locked.String()})
}

type simulateDepositRequest struct {
	AssetID string `json:"asset_id"`
	Address string `json:"address"`
	Tag     string `json:"tag"`
	Amount  string `json:"amount"`
}

// SimulateDeposit injects an inbound transfer from a synthetic external
// sender to an existing deposit address. It rides the normal lifecycle,
// so the wallet is credited when the transaction completes.
func (h *Operator) SimulateDeposit(c *gin.Context) {
	var req simulateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "address is required", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || amount.Sign() <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "amount must be a positive decimal", nil)
		return
	}

	assetID := strings.ToUpper(strings.TrimSpace(req.AssetID))
	asset, err := h.Store.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}

	// The deposit must land on an address this platform custodies.
	if _, err := h.Store.WalletForAddress(c.Request.Context(), strings.TrimSpace(req.Address), strings.TrimSpace(req.Tag)); err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}

	sender, err := addrgen.NewAddress(asset.AddressingStyle)
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}

	t, err := h.Lifecycle.CreateTransaction(c.Request.Context(), service.CreateTransactionInput{
		AssetID:       asset.ID,
		SourceType:    storage.PeerExternal,
		SourceAddress: sender,
		DestType:      storage.PeerExternal,
		DestAddress:   strings.TrimSpace(req.Address),
		DestTag:       strings.TrimSpace(req.Tag),
		Amount:        amount,
		Operation:     "DEPOSIT",
	})
	if err != nil {
		writeServiceError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": t.ID.String(), "status": string(t.State)})
}
