package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name       string
		entityType string
		payload    string
		ok         bool
	}{
		{"item ok", TypeItem, `{"name":"drill","quantity":2}`, true},
		{"item no name", TypeItem, `{"quantity":2}`, false},
		{"item negative quantity", TypeItem, `{"name":"drill","quantity":-5}`, false},
		{"item zero quantity ok", TypeItem, `{"name":"drill","quantity":0}`, true},
		{"item broken json", TypeItem, `{"name":`, false},
		{"location ok", TypeLocation, `{"name":"shelf A"}`, true},
		{"location no name", TypeLocation, `{}`, false},
		{"container ok", TypeContainer, `{"name":"box 3"}`, true},
		{"borrower ok", TypeBorrower, `{"name":"alex"}`, true},
		{"loan ok", TypeLoan, `{"item_id":"i1","borrower_id":"b1"}`, true},
		{"loan no item", TypeLoan, `{"borrower_id":"b1"}`, false},
		{"loan no borrower", TypeLoan, `{"item_id":"i1"}`, false},
		{"unknown type", "spaceship", `{"name":"x"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayload(tc.entityType, []byte(tc.payload))
			if tc.ok {
				assert.NoError(t, err)
			} else {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			}
		})
	}
}

func TestKnownEntityTypes(t *testing.T) {
	types := KnownEntityTypes()
	assert.Len(t, types, 5)
	for _, typ := range types {
		assert.True(t, KnownEntityType(typ))
	}
	assert.False(t, KnownEntityType("spaceship"))
	assert.False(t, KnownEntityType(""))
}
