package core

import "pms/internal/domain/auth"

// FilterEmployeeFields hides contact details from callers who are neither HR, the employee,
// nor someone in the employee's reporting line.
func FilterEmployeeFields(emp *Employee, user auth.UserContext, isSelf, isManager bool) {
	if user.IsHR() || isSelf || isManager {
		return
	}
	emp.Email = ""
	emp.UserID = ""
}
