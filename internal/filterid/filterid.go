// Package filterid defines the four filter-id variants that partition a
// device's privacy budget across epochs and URIs, and the static capacity
// table that assigns each variant its default budget.
package filterid

import (
	"fmt"

	"github.com/columbia/pdslib-firefox/internal/budget"
)

// Kind distinguishes the four filter variants. See spec §3/§4.1.
type Kind int

const (
	// KindNC is the non-collusion per-querier filter: tracks privacy loss
	// for one (epoch, querier URI) pair.
	KindNC Kind = iota
	// KindC is the collusion filter: tracks overall privacy loss for an
	// epoch regardless of querier.
	KindC
	// KindQTrigger is a quota filter regulating C-filter consumption per
	// trigger URI.
	KindQTrigger
	// KindQSource is a quota filter regulating C-filter consumption per
	// source URI.
	KindQSource
)

func (k Kind) String() string {
	switch k {
	case KindNC:
		return "nc"
	case KindC:
		return "c"
	case KindQTrigger:
		return "qtrigger"
	case KindQSource:
		return "qsource"
	default:
		return "unknown"
	}
}

// ID identifies one filter. URI is empty for KindC, which has no
// per-URI scope.
type ID struct {
	Kind  Kind
	Epoch uint64
	URI   string
}

// NC builds a non-collusion filter id scoped to a querier URI.
func NC(epoch uint64, querierURI string) ID {
	return ID{Kind: KindNC, Epoch: epoch, URI: querierURI}
}

// C builds a collusion filter id for an epoch.
func C(epoch uint64) ID {
	return ID{Kind: KindC, Epoch: epoch}
}

// QTrigger builds a quota filter id scoped to a trigger URI.
func QTrigger(epoch uint64, triggerURI string) ID {
	return ID{Kind: KindQTrigger, Epoch: epoch, URI: triggerURI}
}

// QSource builds a quota filter id scoped to a source URI.
func QSource(epoch uint64, sourceURI string) ID {
	return ID{Kind: KindQSource, Epoch: epoch, URI: sourceURI}
}

// String renders the id the way logs and storage keys refer to it, e.g.
// "Nc(3, https://example.com)" or "C(3)". This is safe to log: filter ids
// are not considered sensitive on their own (unlike raw backend errors).
func (id ID) String() string {
	switch id.Kind {
	case KindC:
		return fmt.Sprintf("C(%d)", id.Epoch)
	case KindNC:
		return fmt.Sprintf("Nc(%d, %s)", id.Epoch, id.URI)
	case KindQTrigger:
		return fmt.Sprintf("QTrigger(%d, %s)", id.Epoch, id.URI)
	case KindQSource:
		return fmt.Sprintf("QSource(%d, %s)", id.Epoch, id.URI)
	default:
		return fmt.Sprintf("Unknown(%d, %s)", id.Epoch, id.URI)
	}
}

// StaticCapacities assigns one default capacity per filter Kind. It is the
// Go counterpart of the reference implementation's StaticCapacities<FID, B>.
type StaticCapacities struct {
	NC       budget.Budget
	C        budget.Budget
	QTrigger budget.Budget
	QSource  budget.Budget
}

// Capacity returns the configured capacity for id's Kind.
func (c StaticCapacities) Capacity(id ID) budget.Budget {
	switch id.Kind {
	case KindNC:
		return c.NC
	case KindC:
		return c.C
	case KindQTrigger:
		return c.QTrigger
	case KindQSource:
		return c.QSource
	default:
		return budget.Infinite()
	}
}
