package validator

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"kixikila/internal/money"

	playground "github.com/go-playground/validator/v10"
)

var (
	validate *playground.Validate
	once     sync.Once

	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)
	phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

func get() *playground.Validate {
	once.Do(func() {
		validate = playground.New(playground.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		_ = validate.RegisterValidation("phone", func(fl playground.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("iban", func(fl playground.FieldLevel) bool {
			return ValidIBAN(fl.Field().String())
		})
		_ = validate.RegisterValidation("money", func(fl playground.FieldLevel) bool {
			_, err := money.ParsePositiveMinor(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Struct validates v and returns *Error listing every failing field.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "phone":
		return "must be an international phone number like +244923000000"
	case "iban":
		return "must be a valid IBAN"
	case "money":
		return "must be a positive amount with at most 2 decimals"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	case "uuid4", "uuid":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}

// NormalizePhone strips common separators and a leading 00 prefix.
func NormalizePhone(phone string) string {
	cleaned := phoneCleaner.Replace(strings.TrimSpace(phone))
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	return cleaned
}

func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

// ValidIBAN checks shape and the ISO 13616 mod-97 checksum.
func ValidIBAN(iban string) bool {
	iban = NormalizeIBAN(iban)
	if !ibanPattern.MatchString(iban) {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(fmt.Sprintf("%d", r-'A'+10))
			continue
		}
		digits.WriteRune(r)
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
