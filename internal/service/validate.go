package service

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Типы доменных сущностей, известные серверу.
const (
	TypeItem      = "item"
	TypeLocation  = "location"
	TypeContainer = "container"
	TypeBorrower  = "borrower"
	TypeLoan      = "loan"
)

// payloadValidator проверяет payload конкретного типа сущности.
// Одна и та же проверка применяется и на прямом пути записи, и в Approval
// Engine (на Submit и при применении) — пути не расходятся.
type payloadValidator func(payload []byte) error

var validators = map[string]payloadValidator{
	TypeItem:      validateItem,
	TypeLocation:  validateNamed("location"),
	TypeContainer: validateNamed("container"),
	TypeBorrower:  validateNamed("borrower"),
	TypeLoan:      validateLoan,
}

// KnownEntityTypes возвращает отсортированный список типов сущностей.
func KnownEntityTypes() []string {
	types := make([]string, 0, len(validators))
	for t := range validators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// KnownEntityType сообщает, известен ли тип.
func KnownEntityType(entityType string) bool {
	_, ok := validators[entityType]
	return ok
}

// ValidatePayload проверяет payload для типа сущности.
func ValidatePayload(entityType string, payload []byte) error {
	v, ok := validators[entityType]
	if !ok {
		return &ValidationError{Field: "entity_type", Reason: fmt.Sprintf("unknown entity type %q", entityType)}
	}
	return v(payload)
}

type itemPayload struct {
	Name       string  `json:"name"`
	Quantity   *int64  `json:"quantity,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

func validateItem(payload []byte) error {
	var p itemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return &ValidationError{Reason: "payload is not valid JSON"}
	}
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must be non-negative"}
	}
	return nil
}

type namedPayload struct {
	Name string `json:"name"`
}

// validateNamed — общая проверка сущностей, у которых обязательно только имя.
func validateNamed(kind string) payloadValidator {
	return func(payload []byte) error {
		var p namedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Reason: "payload is not valid JSON"}
		}
		if p.Name == "" {
			return &ValidationError{Field: "name", Reason: kind + " name required"}
		}
		return nil
	}
}

type loanPayload struct {
	ItemID     string  `json:"item_id"`
	BorrowerID string  `json:"borrower_id"`
	DueAt      *string `json:"due_at,omitempty"`
}

func validateLoan(payload []byte) error {
	var p loanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return &ValidationError{Reason: "payload is not valid JSON"}
	}
	if p.ItemID == "" {
		return &ValidationError{Field: "item_id", Reason: "required"}
	}
	if p.BorrowerID == "" {
		return &ValidationError{Field: "borrower_id", Reason: "required"}
	}
	return nil
}
