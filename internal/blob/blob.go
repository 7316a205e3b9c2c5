// Package blob stores retrieved order documents by key.
package blob

import (
	"fmt"
	"strings"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// Store persists document bytes under a relative key.
type Store interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}

// Open returns the backend named by kind ("fs" or "badger") rooted at path.
func Open(kind, path string) (Store, error) {
	switch kind {
	case "fs", "":
		return NewFileStore(path)
	case "badger":
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", kind)
	}
}

// OrderKey builds the key for an order document: pdfs/YYYY/MM/order_<id>_<date>.pdf,
// bucketed by order date.
func OrderKey(orderID uint, orderDate time.Time) string {
	return fmt.Sprintf("pdfs/%d/%02d/order_%d_%s.pdf",
		orderDate.Year(), orderDate.Month(), orderID,
		strings.ReplaceAll(orderDate.Format("2006-01-02"), "-", ""))
}

func errNotFound(op, key string) error {
	return apperr.New(apperr.KindNotFound, op, "document not found: "+key)
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "/") && !strings.Contains(key, "..")
}
