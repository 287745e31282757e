package core

import "time"

const EmployeeStatusActive = "active"

type Employee struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId,omitempty"`
	EmployeeNumber string    `json:"employeeNumber"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email,omitempty"`
	JobTitle       string    `json:"jobTitle"`
	DepartmentID   string    `json:"departmentId"`
	ManagerID      string    `json:"managerId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// ReviewChain names who checks and who approves an employee's records.
type ReviewChain struct {
	CheckerID  string `json:"checkerId"`
	ApproverID string `json:"approverId"`
}
