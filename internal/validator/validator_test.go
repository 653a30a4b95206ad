package validator

import (
	"errors"
	"testing"
)

type signup struct {
	FullName string `json:"full_name" validate:"required,min=2"`
	Phone    string `json:"phone" validate:"required,phone"`
	Email    string `json:"email" validate:"omitempty,email"`
	Amount   string `json:"amount" validate:"required,money"`
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Struct(signup{Phone: "923000000", Email: "nope", Amount: "1.234"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, name := range []string{"full_name", "phone", "email", "amount"} {
		if !fields[name] {
			t.Fatalf("expected %s to fail, got %#v", name, verr.Fields)
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := Struct(signup{FullName: "Ana Silva", Phone: "+244923000000", Amount: "50.00"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" 00244 923-000-000 "); got != "+244923000000" {
		t.Fatalf("unexpected phone %q", got)
	}
}

func TestValidIBAN(t *testing.T) {
	if !ValidIBAN("GB82 WEST 1234 5698 7654 32") {
		t.Fatal("expected reference IBAN to validate")
	}
	if !ValidIBAN("DE89370400440532013000") {
		t.Fatal("expected German IBAN to validate")
	}
	if ValidIBAN("GB82WEST12345698765433") {
		t.Fatal("expected checksum failure")
	}
	if ValidIBAN("not-an-iban") {
		t.Fatal("expected shape failure")
	}
}
