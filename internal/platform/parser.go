package platform

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single result line; export rows are flat JSON
// objects and stay well under this.
const maxLineBytes = 1024 * 1024

// ParseOrderExport reads a newline-delimited order export and reconstructs
// the parent/child structure: order headers are top-level records, line
// items carry only a __parentId back-reference. Children may precede their
// parent in the stream, so association happens after the full scan. An empty
// stream parses to an empty slice, not an error.
func ParseOrderExport(r io.Reader) ([]OrderNode, error) {
	scanner := newLineScanner(r)

	parents := make(map[string]*OrderNode)
	var order []string
	var children []LineRecord

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var probe struct {
			ParentID string `json:"__parentId"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("result line %d: malformed record: %w", lineNo, err)
		}

		if probe.ParentID != "" {
			var line LineRecord
			if err := json.Unmarshal(raw, &line); err != nil {
				return nil, fmt.Errorf("result line %d: malformed line item: %w", lineNo, err)
			}
			children = append(children, line)
			continue
		}

		var rec OrderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("result line %d: malformed order: %w", lineNo, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("result line %d: order record without id", lineNo)
		}
		parents[rec.ID] = &OrderNode{OrderRecord: rec}
		order = append(order, rec.ID)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export result: %w", err)
	}

	for _, child := range children {
		parent, ok := parents[child.ParentID]
		if !ok {
			return nil, fmt.Errorf("line item %s references unknown parent %s", child.ID, child.ParentID)
		}
		parent.Lines = append(parent.Lines, child)
	}

	nodes := make([]OrderNode, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, *parents[id])
	}
	return nodes, nil
}

// ParseSKUExport reads a newline-delimited SKU catalog export. SKU records
// are flat; there is no parent/child structure to reconstruct.
func ParseSKUExport(r io.Reader) ([]SKURecord, error) {
	var records []SKURecord
	err := parseFlat(r, func(raw []byte, lineNo int) error {
		var rec SKURecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("result line %d: malformed sku record: %w", lineNo, err)
		}
		if rec.SKU == "" {
			return fmt.Errorf("result line %d: sku record without sku", lineNo)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// ParseShippingExport reads a newline-delimited shipping/discount export.
func ParseShippingExport(r io.Reader) ([]ShippingRecord, error) {
	var records []ShippingRecord
	err := parseFlat(r, func(raw []byte, lineNo int) error {
		var rec ShippingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("result line %d: malformed shipping record: %w", lineNo, err)
		}
		if rec.OrderID == "" {
			return fmt.Errorf("result line %d: shipping record without order id", lineNo)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

func parseFlat(r io.Reader, decode func(raw []byte, lineNo int) error) error {
	scanner := newLineScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if err := decode(raw, lineNo); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read export result: %w", err)
	}
	return nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return scanner
}
