package capability

import (
	"errors"
	"testing"

	flowagent "github.com/frostholm/flowagent"
)

func TestStandardizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"USD", "USD"},
		{"usd", "USD"},
		{"dollars", "USD"},
		{"$", "USD"},
		{"€", "EUR"},
		{" pounds ", "GBP"},
		{"rouble", "RUB"},
		{"sek", "SEK"},
	}
	for _, tt := range tests {
		if got := standardizeCurrency(tt.in); got != tt.want {
			t.Errorf("standardizeCurrency(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStringArg(t *testing.T) {
	got, err := stringArg([]interface{}{"Oslo"}, 0, "location")
	if err != nil {
		t.Fatalf("stringArg: %v", err)
	}
	if got != "Oslo" {
		t.Errorf("got %q", got)
	}

	for name, args := range map[string][]interface{}{
		"missing": {},
		"nil":     {nil},
		"blank":   {"   "},
	} {
		_, err := stringArg(args, 0, "location")
		var flowErr *flowagent.FlowError
		if !errors.As(err, &flowErr) || flowErr.Code != flowagent.ErrCodeValidation {
			t.Errorf("%s: err = %v, want validation error", name, err)
		}
	}
}

func TestFloatArg(t *testing.T) {
	tests := []struct {
		name string
		args []interface{}
		want float64
	}{
		{"float", []interface{}{12.5}, 12.5},
		{"int", []interface{}{12}, 12},
		{"string", []interface{}{"12.5"}, 12.5},
	}
	for _, tt := range tests {
		got, err := floatArg(tt.args, 0, "amount")
		if err != nil {
			t.Errorf("%s: floatArg: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := floatArg([]interface{}{"lots"}, 0, "amount"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestOptionalArgs(t *testing.T) {
	if got := optionalStringArg([]interface{}{"en"}, 0, "de"); got != "en" {
		t.Errorf("got %q", got)
	}
	if got := optionalStringArg(nil, 0, "de"); got != "de" {
		t.Errorf("fallback not used, got %q", got)
	}
	if got := optionalStringArg([]interface{}{nil}, 0, "de"); got != "de" {
		t.Errorf("nil arg did not fall back, got %q", got)
	}

	if got := optionalIntArg([]interface{}{3.0}, 0, 5); got != 3 {
		t.Errorf("got %d", got)
	}
	if got := optionalIntArg(nil, 0, 5); got != 5 {
		t.Errorf("fallback not used, got %d", got)
	}
}
