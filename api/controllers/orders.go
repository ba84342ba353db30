package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/api/middleware"
	"github.com/localkart/localkart-backend/api/responses"
	"github.com/localkart/localkart-backend/api/validators"
	"github.com/localkart/localkart-backend/internal/delivery"
	internalorders "github.com/localkart/localkart-backend/internal/orders"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/pagination"
)

type createOrderRequest struct {
	ShopID          string                   `json:"shop_id" validate:"required,uuid"`
	ZoneID          string                   `json:"zone_id" validate:"required,uuid"`
	DeliveryAddress string                   `json:"delivery_address" validate:"required,min=10,max=500"`
	DeliveryPhone   string                   `json:"delivery_phone" validate:"required,min=7,max=20"`
	Notes           *string                  `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Items           []createOrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,min=1,max=100"`
}

type updateStatusRequest struct {
	Status      string `json:"status" validate:"required"`
	HandoffCode string `json:"handoff_code,omitempty" validate:"omitempty,min=4,max=10"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// CreateOrder places a new order for the authenticated customer.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := middleware.ActorID(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing"))
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shopID, _ := uuid.Parse(body.ShopID)
		zoneID, _ := uuid.Parse(body.ZoneID)
		items := make([]internalorders.OrderItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			items = append(items, internalorders.OrderItemInput{ProductID: productID, Qty: item.Qty})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			CustomerID:      customerID,
			ShopID:          shopID,
			ZoneID:          zoneID,
			DeliveryAddress: strings.TrimSpace(body.DeliveryAddress),
			DeliveryPhone:   strings.TrimSpace(body.DeliveryPhone),
			Notes:           body.Notes,
			Items:           items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// UpdateOrderStatus applies a lifecycle transition. Delivery agents may only
// move orders currently assigned to them.
func UpdateOrderStatus(svc internalorders.Service, assignments delivery.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status"))
			return
		}

		if actor.Role == enums.ActorRoleDelivery {
			if err := requireAssignedAgent(r, assignments, orderID, actor.UserID); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:     orderID,
			Target:      target,
			Actor:       actor,
			HandoffCode: strings.TrimSpace(body.HandoffCode),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// CancelOrder cancels with a mandatory reason.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, actor, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderDetail returns the full order for participants only: the customer who
// placed it, the shopkeeper it was placed with, the assigned agent, or an
// admin.
func OrderDetail(repo internalorders.Repository, assignments delivery.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := repo.FindOrderWithItems(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch order"))
			return
		}

		if err := authorizeOrderRead(r, assignments, order, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListOrders pages orders for the actor's perspective: customers see their
// own, shopkeepers see their shop's, admins pick a shop via query.
func ListOrders(repo internalorders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, filters, err := listInputs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch actor.Role {
		case enums.ActorRoleCustomer:
			list, err := repo.ListCustomerOrders(r.Context(), actor.UserID, params, filters)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer orders"))
				return
			}
			responses.WriteSuccess(w, list)
		case enums.ActorRoleShopkeeper:
			// A shop is keyed by its shopkeeper's user id.
			list, err := repo.ListShopOrders(r.Context(), actor.UserID, params, filters)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shop orders"))
				return
			}
			responses.WriteSuccess(w, list)
		case enums.ActorRoleAdmin:
			shopID, err := validators.ParsePathUUID(validators.ParseQueryString(r, "shop_id"), "shop_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			list, err := repo.ListShopOrders(r.Context(), shopID, params, filters)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shop orders"))
				return
			}
			responses.WriteSuccess(w, list)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "delivery agents list orders via the agent endpoints"))
		}
	}
}

func actorFromRequest(r *http.Request) (internalorders.Actor, error) {
	userID, ok := middleware.ActorID(r.Context())
	if !ok {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	role := middleware.RoleFromContext(r.Context())
	if !role.IsValid() {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	return internalorders.Actor{UserID: userID, Role: role}, nil
}

func listInputs(r *http.Request) (pagination.Params, internalorders.OrderFilters, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, internalorders.OrderFilters{}, err
	}
	params := pagination.Params{
		Limit:  limit,
		Cursor: validators.ParseQueryString(r, "cursor"),
	}

	filters := internalorders.OrderFilters{}
	if raw := validators.ParseQueryString(r, "status"); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return params, filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status")
		}
		filters.Status = &status
	}
	if filters.DateFrom, err = validators.ParseQueryDate(r, "date_from"); err != nil {
		return params, filters, err
	}
	if filters.DateTo, err = validators.ParseQueryDate(r, "date_to"); err != nil {
		return params, filters, err
	}
	return params, filters, nil
}

func authorizeOrderRead(r *http.Request, assignments delivery.Repository, order *models.Order, actor internalorders.Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCustomer:
		if order.CustomerID == actor.UserID {
			return nil
		}
	case enums.ActorRoleShopkeeper:
		if order.ShopID == actor.UserID {
			return nil
		}
	case enums.ActorRoleDelivery:
		if err := requireAssignedAgent(r, assignments, order.ID, actor.UserID); err == nil {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to you")
}

func requireAssignedAgent(r *http.Request, assignments delivery.Repository, orderID, agentID uuid.UUID) error {
	if assignments == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "assignment repository unavailable")
	}
	assignment, err := assignments.FindActiveAssignmentByOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check assignment")
	}
	if assignment.AgentID != agentID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
	}
	return nil
}
