package domain

import "testing"

func TestObjectTypeRank(t *testing.T) {
	tests := []struct {
		objectType ObjectType
		rank       int
	}{
		{ObjectTypeOrders, 1},
		{ObjectTypeSKUs, 2},
		{ObjectTypeRefunds, 3},
		{ObjectTypeShippingDiscounts, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.objectType), func(t *testing.T) {
			if got := tt.objectType.Rank(); got != tt.rank {
				t.Errorf("expected rank %d, got %d", tt.rank, got)
			}
		})
	}
}

func TestObjectTypeRankOrdering(t *testing.T) {
	// Every prerequisite must sort strictly before its dependent.
	for _, objectType := range AllObjectTypes() {
		for _, prereq := range objectType.Prerequisites() {
			if prereq.Rank() >= objectType.Rank() {
				t.Errorf("prerequisite %s (rank %d) does not precede %s (rank %d)",
					prereq, prereq.Rank(), objectType, objectType.Rank())
			}
		}
	}
}

func TestObjectTypeIsValid(t *testing.T) {
	for _, objectType := range AllObjectTypes() {
		if !objectType.IsValid() {
			t.Errorf("expected %s to be valid", objectType)
		}
	}

	if ObjectType("invoices").IsValid() {
		t.Error("expected unknown type to be invalid")
	}
	if ObjectType("").IsValid() {
		t.Error("expected empty type to be invalid")
	}
}

func TestValidateObjectTypeGraph(t *testing.T) {
	if err := ValidateObjectTypeGraph(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrerequisitesAreDeclared(t *testing.T) {
	for _, objectType := range AllObjectTypes() {
		for _, prereq := range objectType.Prerequisites() {
			if !prereq.IsValid() {
				t.Errorf("%s declares unknown prerequisite %s", objectType, prereq)
			}
		}
	}
}
