package models

// AuditedEntities lists the entity types whose writes are recorded in audit_log. The server
// registers exactly this list at startup.
func AuditedEntities() []any {
	return []any{
		&WorkOrder{},
		&WorkOrderItem{},
	}
}
