package validation

import "testing"

func fieldSet(errs ValidationErrors) map[string]bool {
	out := map[string]bool{}
	for _, e := range errs {
		out[e.Field] = true
	}
	return out
}

func TestValidateTransferRequest(t *testing.T) {
	errs := ValidateTransferRequest("BTC", "INTERNAL", "vault-1", "EXTERNAL", "", "bc1qaddr", "0.5")
	if len(errs) != 0 {
		t.Fatalf("expected valid request, got %v", errs)
	}

	errs = ValidateTransferRequest("", "WALLET", "", "EXTERNAL", "", "", "-1")
	fields := fieldSet(errs)
	for _, want := range []string{"asset_id", "source.type", "destination.address", "amount"} {
		if !fields[want] {
			t.Fatalf("expected error on %s, got %v", want, errs)
		}
	}
}

func TestValidateTransferRequestInternalSides(t *testing.T) {
	errs := ValidateTransferRequest("ETH", "INTERNAL", "", "INTERNAL", "", "", "1")
	fields := fieldSet(errs)
	if !fields["source.vault_id"] || !fields["destination.vault_id"] {
		t.Fatalf("expected vault_id errors on both sides, got %v", errs)
	}
}

func TestValidateAssetRequest(t *testing.T) {
	if errs := ValidateAssetRequest("BTC", "Bitcoin", "ADDRESS_BASED", "0.0005", 8); len(errs) != 0 {
		t.Fatalf("expected valid asset, got %v", errs)
	}

	errs := ValidateAssetRequest("", "", "FANCY", "-1", 99)
	fields := fieldSet(errs)
	for _, want := range []string{"id", "name", "addressing_style", "base_fee", "decimals"} {
		if !fields[want] {
			t.Fatalf("expected error on %s, got %v", want, errs)
		}
	}
}
