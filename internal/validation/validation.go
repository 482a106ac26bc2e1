package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return "invalid request"
}

// ValidateTransferRequest checks the shape of a create-transaction payload
// before it reaches the lifecycle. Business rules (asset existence,
// balances) are checked downstream.
func ValidateTransferRequest(assetID, sourceType, sourceVaultID, destType, destVaultID, destAddress, amount string) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(assetID) == "" {
		errs = append(errs, FieldError{Field: "asset_id", Message: "asset_id is required"})
	}

	sourceType = strings.ToUpper(strings.TrimSpace(sourceType))
	if sourceType != "INTERNAL" && sourceType != "EXTERNAL" {
		errs = append(errs, FieldError{Field: "source.type", Message: "source type must be INTERNAL or EXTERNAL"})
	}
	if sourceType == "INTERNAL" && strings.TrimSpace(sourceVaultID) == "" {
		errs = append(errs, FieldError{Field: "source.vault_id", Message: "vault_id is required for an INTERNAL source"})
	}

	destType = strings.ToUpper(strings.TrimSpace(destType))
	if destType != "INTERNAL" && destType != "EXTERNAL" {
		errs = append(errs, FieldError{Field: "destination.type", Message: "destination type must be INTERNAL or EXTERNAL"})
	}
	if destType == "INTERNAL" && strings.TrimSpace(destVaultID) == "" {
		errs = append(errs, FieldError{Field: "destination.vault_id", Message: "vault_id is required for an INTERNAL destination"})
	}
	if destType == "EXTERNAL" && strings.TrimSpace(destAddress) == "" {
		errs = append(errs, FieldError{Field: "destination.address", Message: "address is required for an EXTERNAL destination"})
	}

	if _, err := parsePositiveDecimal(amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: err.Error()})
	}

	return errs
}

// ValidateAssetRequest checks an operator asset create/update payload.
func ValidateAssetRequest(id, name, addressingStyle, baseFee string, decimals int) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(id) == "" {
		errs = append(errs, FieldError{Field: "id", Message: "id is required"})
	}
	if strings.TrimSpace(name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	}

	style := strings.ToUpper(strings.TrimSpace(addressingStyle))
	switch style {
	case "ACCOUNT_BASED", "ADDRESS_BASED", "MEMO_BASED":
	default:
		errs = append(errs, FieldError{Field: "addressing_style", Message: "addressing_style must be ACCOUNT_BASED, ADDRESS_BASED, or MEMO_BASED"})
	}

	if decimals < 0 || decimals > 30 {
		errs = append(errs, FieldError{Field: "decimals", Message: "decimals must be between 0 and 30"})
	}

	if strings.TrimSpace(baseFee) != "" {
		fee, err := decimal.NewFromString(strings.TrimSpace(baseFee))
		if err != nil {
			errs = append(errs, FieldError{Field: "base_fee", Message: "base_fee must be a decimal number"})
		} else if fee.Sign() < 0 {
			errs = append(errs, FieldError{Field: "base_fee", Message: "base_fee must not be negative"})
		}
	}

	return errs
}

func parsePositiveDecimal(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount must be a decimal number")
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive")
	}
	return d, nil
}
