package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// Handler exposes the reconciliation queue. Operators see every record and may
// resolve them; other callers see only records for their own wallets.
type Handler struct {
	store     Store
	operators map[int64]bool
}

// NewHandler constructs a handler. operatorIDs are owner ids granted operator access.
func NewHandler(store Store, operatorIDs []int64) *Handler {
	ops := make(map[int64]bool, len(operatorIDs))
	for _, id := range operatorIDs {
		ops[id] = true
	}
	return &Handler{store: store, operators: ops}
}

// List returns inconsistencies. ?all=true includes resolved records.
func (h *Handler) List(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	filter := Filter{UnresolvedOnly: c.Query("all") != "true"}
	if !h.operators[caller.OwnerID()] {
		filter.OwnerID = caller.OwnerID()
	}
	list, err := h.store.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"inconsistencies": list,
		"summary":         Summarize(list),
	})
}

// Resolve closes a record after manual repair.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	if !h.operators[caller.OwnerID()] {
		return failure.New(failure.ErrUnauthorized, "operator access required")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return failure.New(failure.ErrInvalidRequest, "invalid inconsistency id")
	}
	in, err := h.store.Resolve(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"inconsistency": in})
}
