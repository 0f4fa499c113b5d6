package server

import "loomline/internal/domain"

// Request payloads

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateProductRequest struct {
	Name          string  `json:"name"`
	StandardHours float64 `json:"standard_hours"`
}

type UpdateProductRequest struct {
	NewName       *string  `json:"new_name,omitempty"`
	StandardHours *float64 `json:"standard_hours,omitempty"`
}

type SubmitOrderRequest struct {
	Name     string  `json:"name"`
	Product  string  `json:"product"`
	Urgency  int     `json:"urgency" minimum:"1" maximum:"10"`
	Cost     float64 `json:"cost"`
	Deadline string  `json:"deadline" format:"date"`
}

// Response payloads

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type ProductResponse struct {
	Name          string  `json:"name"`
	StandardHours float64 `json:"standard_hours"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type OrderResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Product         string  `json:"product"`
	Urgency         int     `json:"urgency"`
	Cost            float64 `json:"cost"`
	ProductionHours float64 `json:"production_hours"`
	Score           float64 `json:"score"`
	Deadline        string  `json:"deadline" format:"date"`
	Status          string  `json:"status" enum:"open,completed"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
	AtRisk          bool    `json:"at_risk"`
}

type SummaryResponse struct {
	Counts         domain.Summary `json:"counts"`
	PlannedHours   float64        `json:"planned_hours"`
	WeeklyCapacity float64        `json:"weekly_capacity"`
	Utilization    float64        `json:"utilization"`
	AtRiskOrders   []string       `json:"at_risk_orders"`
}

func productResponse(p domain.Product) ProductResponse {
	return ProductResponse{Name: p.Name, StandardHours: p.StandardHours, CreatedAt: p.CreatedAt}
}

func mapProducts(items []domain.Product) []ProductResponse {
	res := make([]ProductResponse, 0, len(items))
	for _, p := range items {
		res = append(res, productResponse(p))
	}
	return res
}

func orderResponse(o domain.Order, atRisk bool) OrderResponse {
	return OrderResponse{
		ID:              o.ID,
		Name:            o.Name,
		Product:         o.Product,
		Urgency:         o.Urgency,
		Cost:            o.Cost,
		ProductionHours: o.ProductionHours,
		Score:           o.Score,
		Deadline:        o.Deadline,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		CompletedAt:     o.CompletedAt,
		AtRisk:          atRisk,
	}
}
