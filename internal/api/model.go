package api

import (
	"errors"
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var scopes = []interface{}{string(models.ScopeInvoices), string(models.ScopeNotes)}

// RunOptions are the per-run settings shared by both reconcile requests
type RunOptions struct {
	Tolerance        *decimal.Decimal           `json:"tolerance,omitempty"`
	VendorTolerances map[string]decimal.Decimal `json:"vendor_tolerances,omitempty"`
	SmartMode        *bool                      `json:"smart_mode,omitempty"`
	// SkipSavedLinks runs without the links held in the store
	SkipSavedLinks bool `json:"skip_saved_links,omitempty"`
	// DryRun does not record the run
	DryRun bool               `json:"dry_run,omitempty"`
	Meta   reconciler.RunMeta `json:"meta"`
}

func (o *RunOptions) overrides() reconciler.Overrides {
	return reconciler.Overrides{
		Tolerance:        o.Tolerance,
		VendorTolerances: o.VendorTolerances,
		SmartMode:        o.SmartMode,
	}
}

func (o *RunOptions) rules() []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&o.Tolerance, validation.When(o.Tolerance != nil, validation.By(nonNegative))),
		validation.Field(&o.VendorTolerances, validation.By(vendorTolerances)),
	}
}

// ReconcileInvoicesRequest is the body of POST /api/v1/reconcile/invoices
type ReconcileInvoicesRequest struct {
	Books      []models.RawInvoice                   `json:"books"`
	Portal     []models.RawInvoice                   `json:"portal"`
	Amendments []models.Amendment[models.RawInvoice] `json:"amendments,omitempty"`
	Links      []models.LinkPair                     `json:"links,omitempty"`
	RunOptions
}

// Validate validates the invoice request
func (r *ReconcileInvoicesRequest) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Books, validation.By(eitherSide(len(r.Books), len(r.Portal)))),
		validation.Field(&r.Links, validation.Each(validation.By(linkPair))),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.RunOptions, r.RunOptions.rules()...)
}

// ReconcileNotesRequest is the body of POST /api/v1/reconcile/notes
type ReconcileNotesRequest struct {
	Books      []models.RawNote                   `json:"books"`
	Portal     []models.RawNote                   `json:"portal"`
	Amendments []models.Amendment[models.RawNote] `json:"amendments,omitempty"`
	Links      []models.LinkPair                  `json:"links,omitempty"`
	RunOptions
}

// Validate validates the note request
func (r *ReconcileNotesRequest) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Books, validation.By(eitherSide(len(r.Books), len(r.Portal)))),
		validation.Field(&r.Links, validation.Each(validation.By(linkPair))),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.RunOptions, r.RunOptions.rules()...)
}

// LinkRequest is the body of POST and DELETE /api/v1/links
type LinkRequest struct {
	Scope    string `json:"scope"`
	BooksID  string `json:"books_id"`
	PortalID string `json:"portal_id"`
	// All clears every link of the scope. Only valid on DELETE.
	All bool `json:"all,omitempty"`
}

// ValidateAdd validates a request that adds a link
func (l *LinkRequest) ValidateAdd() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Scope, validation.Required, validation.In(scopes...)),
		validation.Field(&l.BooksID, validation.Required, validation.By(idWithPrefix(models.SideBooks))),
		validation.Field(&l.PortalID, validation.Required, validation.By(idWithPrefix(models.SidePortal))),
		validation.Field(&l.All, validation.By(func(value interface{}) error {
			if l.All {
				return errors.New("all is only valid when removing links")
			}
			return nil
		})),
	)
}

// ValidateRemove validates a request that removes one link or clears a scope
func (l *LinkRequest) ValidateRemove() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Scope, validation.Required, validation.In(scopes...)),
		validation.Field(&l.BooksID, validation.When(!l.All, validation.Required.Error("books_id is required unless all is set"))),
		validation.Field(&l.PortalID, validation.When(!l.All, validation.Required.Error("portal_id is required unless all is set"))),
	)
}

func (l *LinkRequest) pair() models.LinkPair {
	return models.LinkPair{
		BooksID:  models.UniqueID(strings.TrimSpace(l.BooksID)),
		PortalID: models.UniqueID(strings.TrimSpace(l.PortalID)),
	}
}

// ScopeQuery is the query string of the list endpoints
type ScopeQuery struct {
	Scope string `form:"scope"`
	Limit int    `form:"limit"`
}

// Validate validates the scope query
func (q *ScopeQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Scope, validation.Required, validation.In(scopes...)),
		validation.Field(&q.Limit, validation.Min(0)),
	)
}

func eitherSide(books, portal int) validation.RuleFunc {
	return func(value interface{}) error {
		if books == 0 && portal == 0 {
			return errors.New("books or portal rows are required")
		}
		return nil
	}
}

func nonNegative(value interface{}) error {
	d, ok := value.(*decimal.Decimal)
	if !ok || d == nil {
		return errors.New("invalid tolerance")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	if !models.InAmountRange(*d) {
		return errors.New("out of range")
	}
	return nil
}

func vendorTolerances(value interface{}) error {
	m, ok := value.(map[string]decimal.Decimal)
	if !ok {
		return errors.New("invalid vendor tolerances")
	}
	for gstin, tol := range m {
		if strings.TrimSpace(gstin) == "" {
			return errors.New("vendor tolerance without GSTIN")
		}
		if tol.IsNegative() {
			return errors.New("tolerance for " + gstin + " must not be negative")
		}
		if !models.InAmountRange(tol) {
			return errors.New("tolerance for " + gstin + " is out of range")
		}
	}
	return nil
}

func linkPair(value interface{}) error {
	p, ok := value.(models.LinkPair)
	if !ok {
		return errors.New("invalid link")
	}
	if p.BooksID.IsZero() || p.PortalID.IsZero() {
		return errors.New("books_id and portal_id are required")
	}
	return nil
}

func idWithPrefix(side models.Side) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if !strings.HasPrefix(strings.TrimSpace(s), side.IDPrefix()) {
			return errors.New("must start with " + side.IDPrefix())
		}
		return nil
	}
}
