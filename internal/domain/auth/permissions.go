package auth

const (
	PermEmployeesRead     = "core.employees.read"
	PermEmployeesWrite    = "core.employees.write"
	PermKPIRead           = "kpi.read"
	PermKPIWrite          = "kpi.write"
	PermKPIManage         = "kpi.manage"
	PermKPICheck          = "kpi.check"
	PermKPIApprove        = "kpi.approve"
	PermAppraisalRead     = "appraisal.read"
	PermAppraisalWrite    = "appraisal.write"
	PermAppraisalFeedback = "appraisal.feedback"
	PermAppraisalManage   = "appraisal.manage"
	PermReportsRead       = "reports.read"
	PermAuditRead         = "audit.read"
	PermSystemAdmin       = "admin.system"
)

var DefaultPermissions = []string{
	PermEmployeesRead,
	PermEmployeesWrite,
	PermKPIRead,
	PermKPIWrite,
	PermKPIManage,
	PermKPICheck,
	PermKPIApprove,
	PermAppraisalRead,
	PermAppraisalWrite,
	PermAppraisalFeedback,
	PermAppraisalManage,
	PermReportsRead,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermEmployeesRead,
		PermKPIRead,
		PermKPIWrite,
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalFeedback,
		PermReportsRead,
	},
	RoleManager: {
		PermEmployeesRead,
		PermKPIRead,
		PermKPIWrite,
		PermKPICheck,
		PermKPIApprove,
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalFeedback,
		PermReportsRead,
	},
	RoleHR: {
		PermEmployeesRead,
		PermEmployeesWrite,
		PermKPIRead,
		PermKPIWrite,
		PermKPIManage,
		PermKPICheck,
		PermKPIApprove,
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalFeedback,
		PermAppraisalManage,
		PermReportsRead,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
		PermAuditRead,
	},
}
