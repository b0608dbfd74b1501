package domain

import "fmt"

// ObjectType identifies one kind of upstream export the sync pipeline knows
// how to ingest. Types form a static dependency graph: an object type may
// only be synced for a shop once all of its prerequisites completed for the
// same shop and date range.
type ObjectType string

const (
	ObjectTypeOrders            ObjectType = "orders"
	ObjectTypeSKUs              ObjectType = "skus"
	ObjectTypeRefunds           ObjectType = "refunds"
	ObjectTypeShippingDiscounts ObjectType = "shipping-discounts"
)

// prerequisites declares the static dependency graph between object types.
// Orders have no prerequisite; SKU metadata needs orders in place; refund and
// shipping/discount enrichment both write into rows produced by the first two.
var prerequisites = map[ObjectType][]ObjectType{
	ObjectTypeOrders:            {},
	ObjectTypeSKUs:              {ObjectTypeOrders},
	ObjectTypeRefunds:           {ObjectTypeOrders, ObjectTypeSKUs},
	ObjectTypeShippingDiscounts: {ObjectTypeOrders, ObjectTypeSKUs},
}

// AllObjectTypes lists every known object type in dependency rank order.
func AllObjectTypes() []ObjectType {
	return []ObjectType{
		ObjectTypeOrders,
		ObjectTypeSKUs,
		ObjectTypeRefunds,
		ObjectTypeShippingDiscounts,
	}
}

// IsValid reports whether t is a declared object type.
func (t ObjectType) IsValid() bool {
	_, ok := prerequisites[t]
	return ok
}

// Prerequisites returns the object types that must complete before t may run
// for the same shop and date range.
func (t ObjectType) Prerequisites() []ObjectType {
	return prerequisites[t]
}

// Rank returns the scheduling rank of t, the length of its longest
// prerequisite chain plus one. Lower ranks are dispatched first.
func (t ObjectType) Rank() int {
	if !t.IsValid() {
		return 0
	}
	max := 0
	for _, p := range prerequisites[t] {
		if r := p.Rank(); r > max {
			max = r
		}
	}
	return max + 1
}

// ValidateObjectTypeGraph checks that every declared prerequisite is itself a
// declared object type and that the graph contains no cycles. Called once at
// startup so a bad edit to the graph fails fast instead of deadlocking the
// scheduler.
func ValidateObjectTypeGraph() error {
	for t, prereqs := range prerequisites {
		for _, p := range prereqs {
			if _, ok := prerequisites[p]; !ok {
				return fmt.Errorf("object type %q declares unknown prerequisite %q", t, p)
			}
		}
	}
	for t := range prerequisites {
		if err := checkCycle(t, map[ObjectType]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func checkCycle(t ObjectType, seen map[ObjectType]bool) error {
	if seen[t] {
		return fmt.Errorf("object type dependency cycle through %q", t)
	}
	seen[t] = true
	for _, p := range prerequisites[t] {
		if err := checkCycle(p, seen); err != nil {
			return err
		}
	}
	delete(seen, t)
	return nil
}
