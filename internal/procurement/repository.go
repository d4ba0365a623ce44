package procurement

import (
	"context"
	"sync"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetPRForUpdate(ctx context.Context, id string) (PurchaseRequisition, error)
	InsertPR(ctx context.Context, pr PurchaseRequisition) error
	SavePR(ctx context.Context, pr PurchaseRequisition) error
	GetPOForUpdate(ctx context.Context, id string) (*PurchaseOrder, error)
	InsertPO(ctx context.Context, po *PurchaseOrder) error
	SavePO(ctx context.Context, po *PurchaseOrder) error
}

// Repository keeps requisitions and orders in memory in creation order.
type Repository struct {
	mu      sync.RWMutex
	prOrder []string
	prs     map[string]PurchaseRequisition
	poOrder []string
	pos     map[string]*PurchaseOrder
}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{
		prs: make(map[string]PurchaseRequisition),
		pos: make(map[string]*PurchaseOrder),
	}
}

type txRepo struct {
	base      *Repository
	prs       map[string]PurchaseRequisition
	pos       map[string]*PurchaseOrder
	newPRs    []string
	newOrders []string
}

// WithTx runs fn against staged copies and commits them only when fn succeeds.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &txRepo{
		base: r,
		prs:  make(map[string]PurchaseRequisition),
		pos:  make(map[string]*PurchaseOrder),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.prOrder = append(r.prOrder, tx.newPRs...)
	r.poOrder = append(r.poOrder, tx.newOrders...)
	for id, pr := range tx.prs {
		r.prs[id] = pr
	}
	for id, po := range tx.pos {
		r.pos[id] = po
	}
	return nil
}

// GetPR returns a copy of one requisition.
func (r *Repository) GetPR(_ context.Context, id string) (PurchaseRequisition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pr, ok := r.prs[id]
	if !ok {
		return PurchaseRequisition{}, ErrRequisitionNotFound
	}
	return pr.clone(), nil
}

// ListPRs returns copies of every requisition in creation order.
func (r *Repository) ListPRs(_ context.Context) ([]PurchaseRequisition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PurchaseRequisition, 0, len(r.prOrder))
	for _, id := range r.prOrder {
		out = append(out, r.prs[id].clone())
	}
	return out, nil
}

// GetPO returns a detached copy of one order.
func (r *Repository) GetPO(_ context.Context, id string) (*PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	po, ok := r.pos[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return po.clone(), nil
}

// ListPOs returns detached copies of every order in creation order.
func (r *Repository) ListPOs(_ context.Context) ([]*PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PurchaseOrder, 0, len(r.poOrder))
	for _, id := range r.poOrder {
		out = append(out, r.pos[id].clone())
	}
	return out, nil
}

// Replace swaps the working set for the given requisitions and orders.
func (r *Repository) Replace(prs []PurchaseRequisition, pos []*PurchaseOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prOrder = make([]string, 0, len(prs))
	r.prs = make(map[string]PurchaseRequisition, len(prs))
	for _, pr := range prs {
		r.prOrder = append(r.prOrder, pr.ID)
		r.prs[pr.ID] = pr.clone()
	}
	r.poOrder = make([]string, 0, len(pos))
	r.pos = make(map[string]*PurchaseOrder, len(pos))
	for _, po := range pos {
		r.poOrder = append(r.poOrder, po.ID())
		r.pos[po.ID()] = po.clone()
	}
}

func (tx *txRepo) GetPRForUpdate(_ context.Context, id string) (PurchaseRequisition, error) {
	if pr, ok := tx.prs[id]; ok {
		return pr.clone(), nil
	}
	pr, ok := tx.base.prs[id]
	if !ok {
		return PurchaseRequisition{}, ErrRequisitionNotFound
	}
	return pr.clone(), nil
}

func (tx *txRepo) InsertPR(_ context.Context, pr PurchaseRequisition) error {
	if _, ok := tx.base.prs[pr.ID]; ok {
		return ErrDuplicateDocument
	}
	if _, ok := tx.prs[pr.ID]; ok {
		return ErrDuplicateDocument
	}
	tx.prs[pr.ID] = pr.clone()
	tx.newPRs = append(tx.newPRs, pr.ID)
	return nil
}

func (tx *txRepo) SavePR(ctx context.Context, pr PurchaseRequisition) error {
	if _, err := tx.GetPRForUpdate(ctx, pr.ID); err != nil {
		return err
	}
	tx.prs[pr.ID] = pr.clone()
	return nil
}

func (tx *txRepo) GetPOForUpdate(_ context.Context, id string) (*PurchaseOrder, error) {
	if po, ok := tx.pos[id]; ok {
		return po.clone(), nil
	}
	po, ok := tx.base.pos[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return po.clone(), nil
}

func (tx *txRepo) InsertPO(_ context.Context, po *PurchaseOrder) error {
	if _, ok := tx.base.pos[po.ID()]; ok {
		return ErrDuplicateDocument
	}
	if _, ok := tx.pos[po.ID()]; ok {
		return ErrDuplicateDocument
	}
	tx.pos[po.ID()] = po.clone()
	tx.newOrders = append(tx.newOrders, po.ID())
	return nil
}

func (tx *txRepo) SavePO(ctx context.Context, po *PurchaseOrder) error {
	if _, err := tx.GetPOForUpdate(ctx, po.ID()); err != nil {
		return err
	}
	tx.pos[po.ID()] = po.clone()
	return nil
}
