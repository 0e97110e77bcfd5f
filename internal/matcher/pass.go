package matcher

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// label is the classification a pass gives to the outcomes it produces
type label struct {
	kind   models.OutcomeKind
	match  models.MatchKind
	status string
	logic  string
}

// predicate decides whether a keyed candidate pair is accepted
type predicate[T any] func(books, portal *T) bool

// stage is one step of a cascade. It consumes the leftovers of the previous step
// and returns its outcomes together with new leftover slices.
type stage[T models.Record] struct {
	name string
	run  func(books, portal []T) (outcomes []models.Outcome[T], booksLeft, portalLeft []T)
}

// pair builds a paired outcome from copies of the two records
func pair[T models.Record](l label, b, p T) models.Outcome[T] {
	return models.Outcome[T]{
		Kind:   l.kind,
		Match:  l.match,
		Status: l.status,
		Logic:  l.logic,
		Books:  &b,
		Portal: &p,
	}
}

// single builds an outcome referencing one record of one side
func single[T models.Record](l label, side models.Side, r T) models.Outcome[T] {
	o := models.Outcome[T]{
		Kind:   l.kind,
		Match:  l.match,
		Status: l.status,
		Logic:  l.logic,
	}
	if side == models.SideBooks {
		o.Books = &r
	} else {
		o.Portal = &r
	}
	return o
}

// remaining returns the records whose position is not marked used, in input order
func remaining[T any](records []T, used []bool) []T {
	out := make([]T, 0, len(records))
	for i := range records {
		if !used[i] {
			out = append(out, records[i])
		}
	}
	return out
}

// keyedPass is the one-to-one pass every keyed cascade step is built on. The Nth
// Books record of a key is tried only against the Nth Portal record of the same
// key. A pair failing accept returns both records to the leftovers.
func keyedPass[T models.Record](name string, l label, key keyFunc[T], accept predicate[T]) stage[T] {
	return stage[T]{
		name: name,
		run: func(books, portal []T) ([]models.Outcome[T], []T, []T) {
			portalIdx := newOccurrenceIndex(portal, key)
			seen := make(map[string]int, portalIdx.Len())

			booksUsed := make([]bool, len(books))
			portalUsed := make([]bool, len(portal))
			var outcomes []models.Outcome[T]

			for i := range books {
				k, ok := key(&books[i])
				if !ok {
					continue
				}
				n := seen[k]
				seen[k] = n + 1

				j, found := portalIdx.Occurrence(k, n)
				if !found {
					continue
				}
				if accept != nil && !accept(&books[i], &portal[j]) {
					continue
				}

				booksUsed[i] = true
				portalUsed[j] = true
				outcomes = append(outcomes, pair(l, books[i], portal[j]))
			}

			return outcomes, remaining(books, booksUsed), remaining(portal, portalUsed)
		},
	}
}

// manualPass pairs the caller's links by unique id. Links naming an id that is absent
// from the leftovers, or already used by an earlier link, are skipped.
func manualPass[T models.Record](l label, links []models.LinkPair, log logger.Logger) stage[T] {
	return stage[T]{
		name: "manual",
		run: func(books, portal []T) ([]models.Outcome[T], []T, []T) {
			if len(links) == 0 {
				return nil, books, portal
			}

			booksPos := positionsByID(books)
			portalPos := positionsByID(portal)
			booksUsed := make([]bool, len(books))
			portalUsed := make([]bool, len(portal))
			var outcomes []models.Outcome[T]

			for _, link := range links {
				i, okB := booksPos[link.BooksID]
				j, okP := portalPos[link.PortalID]
				switch {
				case !okB || !okP:
					log.WithFields(logger.Fields{
						"books_id":  link.BooksID,
						"portal_id": link.PortalID,
					}).Debug("Skipping manual link with unknown id")
					continue
				case booksUsed[i] || portalUsed[j]:
					log.WithField("link", link.String()).Debug("Skipping manual link reusing a linked id")
					continue
				}

				booksUsed[i] = true
				portalUsed[j] = true
				outcomes = append(outcomes, pair(l, books[i], portal[j]))
			}

			return outcomes, remaining(books, booksUsed), remaining(portal, portalUsed)
		},
	}
}

func positionsByID[T models.Record](records []T) map[models.UniqueID]int {
	pos := make(map[models.UniqueID]int, len(records))
	for i := range records {
		pos[records[i].RecordID()] = i
	}
	return pos
}

// approxValuePass greedily pairs each Books record, in order, with the first unused
// Portal record whose rounded taxable value is r, r-1 or r+1 and that passes accept.
// Each Portal record is consumed at most once.
func approxValuePass[T models.Record](name string, l label, accept predicate[T]) stage[T] {
	return stage[T]{
		name: name,
		run: func(books, portal []T) ([]models.Outcome[T], []T, []T) {
			byUnits := newOccurrenceIndex(portal, func(r *T) (string, bool) {
				return unitsKey(roundedTaxable(*r)), true
			})

			booksUsed := make([]bool, len(books))
			portalUsed := make([]bool, len(portal))
			var outcomes []models.Outcome[T]

			for i := range books {
				r := roundedTaxable(books[i])
			search:
				for _, units := range []int64{r, r - 1, r + 1} {
					for _, j := range byUnits.Positions(unitsKey(units)) {
						if portalUsed[j] {
							continue
						}
						if accept != nil && !accept(&books[i], &portal[j]) {
							continue
						}
						booksUsed[i] = true
						portalUsed[j] = true
						outcomes = append(outcomes, pair(l, books[i], portal[j]))
						break search
					}
				}
			}

			return outcomes, remaining(books, booksUsed), remaining(portal, portalUsed)
		},
	}
}

// groupPass emits every leftover of a GSTIN as a group suggestion when the GSTIN's
// taxable totals on both sides are within tolerance. Books rows come first, then
// Portal rows; GSTINs follow their first appearance on the Books side.
func groupPass[T models.Record](l label, tolerance func(gstin string) decimal.Decimal) stage[T] {
	return stage[T]{
		name: "group",
		run: func(books, portal []T) ([]models.Outcome[T], []T, []T) {
			byGSTIN := func(r *T) (string, bool) { return (*r).SupplierGSTIN(), true }
			booksIdx := newOccurrenceIndex(books, byGSTIN)
			portalIdx := newOccurrenceIndex(portal, byGSTIN)

			var matched []string
			for _, gstin := range booksIdx.Keys() {
				portalPos := portalIdx.Positions(gstin)
				if len(portalPos) == 0 {
					continue
				}
				booksTotal := sumTaxable(books, booksIdx.Positions(gstin))
				portalTotal := sumTaxable(portal, portalPos)
				if models.WithinTolerance(booksTotal, portalTotal, tolerance(gstin)) {
					matched = append(matched, gstin)
				}
			}
			if len(matched) == 0 {
				return nil, books, portal
			}

			booksUsed := make([]bool, len(books))
			portalUsed := make([]bool, len(portal))
			var outcomes []models.Outcome[T]

			for _, gstin := range matched {
				for _, i := range booksIdx.Positions(gstin) {
					booksUsed[i] = true
					outcomes = append(outcomes, single(l, models.SideBooks, books[i]))
				}
			}
			for _, gstin := range matched {
				for _, j := range portalIdx.Positions(gstin) {
					portalUsed[j] = true
					outcomes = append(outcomes, single(l, models.SidePortal, portal[j]))
				}
			}

			return outcomes, remaining(books, booksUsed), remaining(portal, portalUsed)
		},
	}
}

// unmatchedPass turns every leftover into a terminal outcome of its side
func unmatchedPass[T models.Record](booksLabel, portalLabel label) stage[T] {
	return stage[T]{
		name: "unmatched",
		run: func(books, portal []T) ([]models.Outcome[T], []T, []T) {
			outcomes := make([]models.Outcome[T], 0, len(books)+len(portal))
			for _, b := range books {
				outcomes = append(outcomes, single(booksLabel, models.SideBooks, b))
			}
			for _, p := range portal {
				outcomes = append(outcomes, single(portalLabel, models.SidePortal, p))
			}
			return outcomes, nil, nil
		},
	}
}

// runCascade runs the stages in order, feeding each the leftovers of the previous one
func runCascade[T models.Record](tracker *logger.ProgressTracker, stages []stage[T], books, portal []T) []models.Outcome[T] {
	outcomes := make([]models.Outcome[T], 0, len(books)+len(portal))
	booksLeft, portalLeft := books, portal

	for _, s := range stages {
		var produced []models.Outcome[T]
		produced, booksLeft, portalLeft = s.run(booksLeft, portalLeft)
		outcomes = append(outcomes, produced...)
		tracker.Step(s.name, len(produced), len(booksLeft), len(portalLeft))
	}

	tracker.Complete()
	return outcomes
}

func roundedTaxable[T models.Record](r T) int64 {
	return models.RoundUnits(r.Values().TaxableValue)
}

func sumTaxable[T models.Record](records []T, positions []int) decimal.Decimal {
	total := decimal.Zero
	for _, i := range positions {
		total = total.Add(records[i].Values().TaxableValue)
	}
	return total
}
