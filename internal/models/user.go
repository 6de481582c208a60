package models

// StaffRole gates what a staff member may do.
type StaffRole string

const (
	RoleAdmin   StaffRole = "admin"
	RoleWaiter  StaffRole = "waiter"
	RoleKitchen StaffRole = "kitchen"
	RoleCashier StaffRole = "cashier"
)

// StaffMember is an authenticated employee.
type StaffMember struct {
	BaseModel
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `gorm:"uniqueIndex" json:"phone"`
	Role         StaffRole `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Orders       []Order   `gorm:"foreignKey:WaiterID" json:"orders,omitempty"`
}
