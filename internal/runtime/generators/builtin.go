package generators

// Built-in specification types.
const (
	ISO29148SoftwareRequirements    = "iso29148_software_requirements"
	ISO29148StakeholderRequirements = "iso29148_stakeholder_requirements"
	ISO29148SystemRequirements      = "iso29148_system_requirements"
	ISO29148ConceptOfOperations     = "iso29148_concept_of_operations"
	IEEE830SRS                      = "ieee830_srs"
	IEEE830DRD                      = "ieee830_drd"
	MilStd498SRS                    = "milstd498_srs"
	SecurityScanReport              = "security_scan_report"
	ComplianceAuditReport           = "compliance_audit_report"
	TestExecutionReport             = "test_execution_report"
)

func requirementItems() []Rule {
	return []Rule{String("id"), String("statement")}
}

// BuiltinVariants returns a fresh slice of the bundled variants.
func BuiltinVariants() []Variant {
	return []Variant{
		{
			Type:  ISO29148SoftwareRequirements,
			Title: "Software Requirements Specification (ISO/IEC/IEEE 29148)",
			Rules: []Rule{
				String("introduction.purpose"),
				String("introduction.scope"),
				Array("requirements", 1, requirementItems()...),
			},
		},
		{
			Type:  ISO29148StakeholderRequirements,
			Title: "Stakeholder Requirements Specification (ISO/IEC/IEEE 29148)",
			Rules: []Rule{
				String("introduction.purpose"),
				Array("stakeholders", 1, String("name")),
			},
		},
		{
			Type:  ISO29148SystemRequirements,
			Title: "System Requirements Specification (ISO/IEC/IEEE 29148)",
			Rules: []Rule{
				String("introduction.purpose"),
				String("system.name"),
				Array("requirements", 1, requirementItems()...),
			},
		},
		{
			Type:  ISO29148ConceptOfOperations,
			Title: "Concept of Operations (ISO/IEC/IEEE 29148)",
			Rules: []Rule{
				String("introduction.purpose"),
				Array("operational_scenarios", 1, String("name")),
			},
		},
		{
			Type:  IEEE830SRS,
			Title: "Software Requirements Specification (IEEE 830)",
			Rules: []Rule{
				String("introduction.purpose"),
				String("introduction.scope"),
				Array("requirements", 1, requirementItems()...),
			},
		},
		{
			Type:  IEEE830DRD,
			Title: "Data Requirements Description (IEEE 830)",
			Rules: []Rule{
				String("introduction.purpose"),
				Array("data_items", 1, String("name")),
			},
		},
		{
			Type:  MilStd498SRS,
			Title: "Software Requirements Specification (MIL-STD-498)",
			Rules: []Rule{
				String("scope.identification"),
				Array("requirements", 1, requirementItems()...),
			},
		},
		{
			Type:  SecurityScanReport,
			Title: "Security Scan Report",
			Rules: []Rule{
				String("scan.target"),
				Array("findings", 0, String("title"), String("severity")),
			},
		},
		{
			Type:  ComplianceAuditReport,
			Title: "Compliance Audit Report",
			Rules: []Rule{
				String("audit.framework"),
				Array("controls", 1, String("id"), String("status")),
			},
		},
		{
			Type:  TestExecutionReport,
			Title: "Test Execution Report",
			Rules: []Rule{
				Number("summary.total"),
				Array("test_cases", 1, String("id"), String("result")),
			},
		},
	}
}
