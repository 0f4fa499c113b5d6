package domain

// Order lifecycle statuses. Completed is terminal.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
)

type Product struct {
	Name          string  `json:"name"`
	StandardHours float64 `json:"standard_hours"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type Order struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Product         string  `json:"product"`
	Urgency         int     `json:"urgency" minimum:"1" maximum:"10"`
	Cost            float64 `json:"cost"`
	ProductionHours float64 `json:"production_hours"`
	Score           float64 `json:"score"`
	Deadline        string  `json:"deadline" format:"date"`
	Status          string  `json:"status" enum:"open,completed"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

// Summary is the order-count breakdown shown on the dashboard.
type Summary struct {
	Open        int `json:"open"`
	OverdueOpen int `json:"overdue_open"`
	Completed   int `json:"completed"`
}
